package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/doc-chat/internal/module/session/domain"
)

func TestStore_FindUnknownSessionReturnsNone(t *testing.T) {
	store := NewStore()

	found, err := store.Find(context.Background(), "session_missing")
	require.NoError(t, err)
	assert.True(t, found.IsAbsent())
}

func TestStore_AppendAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Create(ctx, "session_a"))
	require.NoError(t, store.Append(ctx, "session_a", domain.Turn{
		UserMessage: "What is MMR?",
		Answer:      "Maximal Marginal Relevance.",
	}))

	found, err := store.Find(ctx, "session_a")
	require.NoError(t, err)
	history := found.MustGet()
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
}

func TestStore_HistoryIsolatedPerSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Append(ctx, "session_a", domain.Turn{UserMessage: "a", Answer: "1"}))
	require.NoError(t, store.Append(ctx, "session_b", domain.Turn{UserMessage: "b", Answer: "2"}))

	foundA, err := store.Find(ctx, "session_a")
	require.NoError(t, err)
	require.Len(t, foundA.MustGet(), 2)
	assert.Equal(t, "a", foundA.MustGet()[0].Content)
}

func TestStore_FindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Append(ctx, "session_a", domain.Turn{UserMessage: "a", Answer: "1"}))

	found, err := store.Find(ctx, "session_a")
	require.NoError(t, err)
	history := found.MustGet()
	history[0].Content = "mutated"

	again, err := store.Find(ctx, "session_a")
	require.NoError(t, err)
	assert.Equal(t, "a", again.MustGet()[0].Content)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Append(ctx, "session_a", domain.Turn{UserMessage: "a", Answer: "1"}))
	require.NoError(t, store.Clear(ctx, "session_a"))

	found, err := store.Find(ctx, "session_a")
	require.NoError(t, err)
	assert.True(t, found.IsAbsent())
}
