package commands

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))

	long := strings.Repeat("a", 100)
	got := truncateString(long, 80)
	assert.Len(t, []rune(got), 80)
	assert.True(t, strings.HasSuffix(got, "..."))

	// マルチバイト文字の途中で切らない
	japanese := strings.Repeat("日本語の履歴テキスト", 20)
	got = truncateString(japanese, 80)
	assert.Len(t, []rune(got), 80)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.True(t, utf8.ValidString(got))
}
