package loader

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T) (*Loader, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLoader(dir, slog.New(slog.NewTextHandler(io.Discard, nil))), dir
}

func TestSaveAndLoad_SavesSupportedFiles(t *testing.T) {
	l, dir := newTestLoader(t)

	docs, err := l.SaveAndLoad("session_a", []UploadedFile{
		{Name: "notes.txt", Reader: strings.NewReader("hello world")},
		{Name: "readme.md", Reader: strings.NewReader("# title")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "hello world", docs[0].Text)

	entries, err := os.ReadDir(filepath.Join(dir, "session_a"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSaveAndLoad_SkipsUnsupportedExtensions(t *testing.T) {
	l, _ := newTestLoader(t)

	docs, err := l.SaveAndLoad("session_a", []UploadedFile{
		{Name: "binary.exe", Reader: strings.NewReader("MZ")},
		{Name: "notes.txt", Reader: strings.NewReader("ok")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "ok", docs[0].Text)
}

func TestSaveAndLoad_SourceIDKeepsExtension(t *testing.T) {
	l, _ := newTestLoader(t)

	docs, err := l.SaveAndLoad("session_a", []UploadedFile{
		{Name: "notes.txt", Reader: strings.NewReader("x")},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, strings.HasSuffix(docs[0].SourceID, ".txt"))
}
