package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chatdomain "github.com/jinford/doc-chat/internal/module/chat/domain"
	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
	retrievaldomain "github.com/jinford/doc-chat/internal/module/retrieval/domain"
	"github.com/jinford/doc-chat/internal/module/session/adapter/memory"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

type stubIndexes struct {
	known map[string][]indexdomain.SearchHit
}

func (s *stubIndexes) Exists(_ context.Context, sessionID string) (bool, error) {
	_, ok := s.known[sessionID]
	return ok, nil
}

func (s *stubIndexes) Search(_ context.Context, sessionID string, _ []float32, limit int) ([]indexdomain.SearchHit, error) {
	hits := s.known[sessionID]
	if limit < len(hits) {
		return hits[:limit], nil
	}
	return hits, nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

type stubLLM struct {
	prompts   []string
	responses []string
	err       error
}

func (l *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	l.prompts = append(l.prompts, prompt)
	if l.err != nil {
		return "", l.err
	}
	if len(l.responses) == 0 {
		return "stub answer", nil
	}
	resp := l.responses[0]
	l.responses = l.responses[1:]
	return resp, nil
}

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func chunkHit(text string, rank int) indexdomain.SearchHit {
	return indexdomain.SearchHit{
		Entry: indexdomain.Entry{
			Fingerprint: text,
			Vector:      []float32{1, 0, 0},
			Chunk:       ingestdomain.Chunk{Text: text, SourceID: "doc.txt", TokenCount: 1},
		},
		Score:     1.0 - float64(rank)*0.1,
		FetchRank: rank,
	}
}

func newChatService(sessions sessiondomain.Store, indexes Indexes, llm *stubLLM) *ChatService {
	return NewChatService(
		sessions,
		indexes,
		&stubEmbedder{},
		llm,
		retrievaldomain.Params{K: 2, FetchK: 4, LambdaMult: 0.5},
		NewContextBuilder(wordCounter{}, 1000),
		3,
		slog.New(slog.DiscardHandler),
	)
}

func TestChatService_LoadRetrieverUnknownSession(t *testing.T) {
	svc := newChatService(memory.NewStore(), &stubIndexes{known: map[string][]indexdomain.SearchHit{}}, &stubLLM{})

	err := svc.LoadRetriever(context.Background(), "missing")
	assert.ErrorIs(t, err, chatdomain.ErrSessionNotFound)
}

func TestChatService_InvokeBeforeLoad(t *testing.T) {
	svc := newChatService(memory.NewStore(), &stubIndexes{known: map[string][]indexdomain.SearchHit{}}, &stubLLM{})

	_, err := svc.Invoke(context.Background(), "s1", "hello?")
	assert.ErrorIs(t, err, chatdomain.ErrNotInitialized)
}

func TestChatService_InvokeEmptyMessage(t *testing.T) {
	svc := newChatService(memory.NewStore(), &stubIndexes{known: map[string][]indexdomain.SearchHit{}}, &stubLLM{})

	_, err := svc.Invoke(context.Background(), "s1", "   ")
	assert.ErrorIs(t, err, chatdomain.ErrEmptyMessage)
}

func TestChatService_InvokeFirstTurn(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk about cats", 0), chunkHit("chunk about dogs", 1)},
	}}
	llm := &stubLLM{responses: []string{"Cats are mammals."}}
	svc := newChatService(sessions, indexes, llm)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	answer, err := svc.Invoke(ctx, "s1", "What are cats?")
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", answer)

	// 履歴が空なので再定式化は行わず、LLM呼び出しは回答生成の1回のみ
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "chunk about cats")
	assert.Contains(t, llm.prompts[0], "What are cats?")

	// ターンが履歴に記録される
	found, err := sessions.Find(ctx, "s1")
	require.NoError(t, err)
	history := found.MustGet()
	require.Len(t, history, 2)
	assert.Equal(t, sessiondomain.RoleUser, history[0].Role)
	assert.Equal(t, "What are cats?", history[0].Content)
	assert.Equal(t, sessiondomain.RoleAssistant, history[1].Role)
}

func TestChatService_InvokeReformulatesWithHistory(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk about cats", 0)},
	}}
	llm := &stubLLM{responses: []string{"First answer.", "What do cats eat?", "They eat meat."}}
	svc := newChatService(sessions, indexes, llm)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	_, err := svc.Invoke(ctx, "s1", "What are cats?")
	require.NoError(t, err)

	answer, err := svc.Invoke(ctx, "s1", "What do they eat?")
	require.NoError(t, err)
	assert.Equal(t, "They eat meat.", answer)

	// 2ターン目は再定式化+回答生成の2回
	require.Len(t, llm.prompts, 3)
	assert.Contains(t, llm.prompts[1], "standalone question")
	assert.Contains(t, llm.prompts[1], "What do they eat?")
	assert.Contains(t, llm.prompts[1], "First answer.")
}

func TestChatService_InvokeGenerationFailure(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk", 0)},
	}}
	llm := &stubLLM{err: errors.New("provider unavailable")}
	svc := newChatService(sessions, indexes, llm)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	_, err := svc.Invoke(ctx, "s1", "hello?")

	var genErr *chatdomain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorContains(t, genErr.Err, "provider unavailable")

	// 失敗したターンは履歴に残らない
	found, ferr := sessions.Find(ctx, "s1")
	require.NoError(t, ferr)
	assert.True(t, found.IsAbsent())
}

func TestChatService_InvokeEmbedderFailure(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk", 0)},
	}}
	svc := NewChatService(
		sessions,
		indexes,
		&stubEmbedder{err: errors.New("embedding provider unavailable")},
		&stubLLM{},
		retrievaldomain.Params{K: 2, FetchK: 4, LambdaMult: 0.5},
		NewContextBuilder(wordCounter{}, 1000),
		3,
		slog.New(slog.DiscardHandler),
	)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	_, err := svc.Invoke(ctx, "s1", "hello?")

	// クエリ埋め込みの失敗も生成エラーとして分類される
	var genErr *chatdomain.GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "document retrieval", genErr.Stage)
	assert.ErrorContains(t, err, "embedding provider unavailable")

	found, ferr := sessions.Find(ctx, "s1")
	require.NoError(t, ferr)
	assert.True(t, found.IsAbsent())
}

func TestChatService_InvokeEmptyAnswerFallback(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk", 0)},
	}}
	llm := &stubLLM{responses: []string{"   "}}
	svc := newChatService(sessions, indexes, llm)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	answer, err := svc.Invoke(ctx, "s1", "hello?")
	require.NoError(t, err)
	assert.Equal(t, "no answer generated.", answer)
}

func TestChatService_InvokeLongAnswerClamped(t *testing.T) {
	sessions := memory.NewStore()
	indexes := &stubIndexes{known: map[string][]indexdomain.SearchHit{
		"s1": {chunkHit("chunk", 0)},
	}}
	llm := &stubLLM{responses: []string{strings.Repeat("a", 5000)}}
	svc := newChatService(sessions, indexes, llm)
	ctx := context.Background()

	require.NoError(t, svc.LoadRetriever(ctx, "s1"))

	answer, err := svc.Invoke(ctx, "s1", "hello?")
	require.NoError(t, err)
	assert.Len(t, answer, 4096)
}

func TestTrimHistory(t *testing.T) {
	history := make([]sessiondomain.Message, 10)
	for i := range history {
		history[i] = sessiondomain.Message{Role: sessiondomain.RoleUser, Content: string(rune('a' + i))}
	}

	trimmed := TrimHistory(history, 2)
	require.Len(t, trimmed, 4)
	assert.Equal(t, "g", trimmed[0].Content)

	assert.Len(t, TrimHistory(history, 10), 10)
	assert.Nil(t, TrimHistory(history, 0))
}

func TestContextBuilder_Build(t *testing.T) {
	hits := []indexdomain.SearchHit{
		{Entry: indexdomain.Entry{Chunk: ingestdomain.Chunk{Text: "first chunk", SourceID: "a.txt", TokenCount: 10}}},
		{Entry: indexdomain.Entry{Chunk: ingestdomain.Chunk{Text: "second chunk", SourceID: "a.txt", TokenCount: 10}}},
		{Entry: indexdomain.Entry{Chunk: ingestdomain.Chunk{Text: "third chunk", SourceID: "a.txt", TokenCount: 10}}},
	}

	// 予算25トークンでは2件目まで
	cb := NewContextBuilder(wordCounter{}, 25)
	out := cb.Build(hits)
	assert.Contains(t, out, "first chunk")
	assert.Contains(t, out, "second chunk")
	assert.NotContains(t, out, "third chunk")

	// 先頭チャンクが予算超過でも最低1件は含める
	cb = NewContextBuilder(wordCounter{}, 5)
	out = cb.Build(hits)
	assert.Contains(t, out, "first chunk")
	assert.NotContains(t, out, "second chunk")
}
