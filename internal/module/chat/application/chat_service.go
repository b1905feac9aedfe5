package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	chatdomain "github.com/jinford/doc-chat/internal/module/chat/domain"
	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	llmdomain "github.com/jinford/doc-chat/internal/module/llm/domain"
	retrievalapp "github.com/jinford/doc-chat/internal/module/retrieval/application"
	retrievaldomain "github.com/jinford/doc-chat/internal/module/retrieval/domain"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

const (
	// maxAnswerLength は回答の最大文字数(rune単位)
	maxAnswerLength = 4096

	// fallbackAnswer はLLMが空文字列を返した場合の代替回答
	fallbackAnswer = "no answer generated."
)

// Indexes はセッション別インデックスへの参照ポート
type Indexes interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
	Search(ctx context.Context, sessionID string, queryVector []float32, limit int) ([]indexdomain.SearchHit, error)
}

// ChatService は会話付きRAGのオーケストレーターです。
// LoadRetrieverでセッションのRetrieverを初期化し、Invokeで
// 履歴を踏まえた質問の再定式化・検索・回答生成を実行します。
type ChatService struct {
	sessions      sessiondomain.Store
	indexes       Indexes
	embedder      retrievalapp.QueryEmbedder
	llm           llmdomain.Client
	params        retrievaldomain.Params
	contextB      *ContextBuilder
	historyWindow int
	log           *slog.Logger

	mu         sync.RWMutex
	retrievers map[string]*retrievalapp.Retriever
}

// NewChatService は新しいChatServiceを作成します
func NewChatService(
	sessions sessiondomain.Store,
	indexes Indexes,
	embedder retrievalapp.QueryEmbedder,
	llm llmdomain.Client,
	params retrievaldomain.Params,
	contextB *ContextBuilder,
	historyWindow int,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		sessions:      sessions,
		indexes:       indexes,
		embedder:      embedder,
		llm:           llm,
		params:        params,
		contextB:      contextB,
		historyWindow: historyWindow,
		log:           log,
		retrievers:    make(map[string]*retrievalapp.Retriever),
	}
}

// LoadRetriever はセッションの永続化済みインデックスを確認し、
// そのセッション用のRetrieverを初期化します。
// インデックスが存在しない場合はErrSessionNotFoundを返します。
func (s *ChatService) LoadRetriever(ctx context.Context, sessionID string) error {
	exists, err := s.indexes.Exists(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to check session index: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", chatdomain.ErrSessionNotFound, sessionID)
	}

	retriever, err := retrievalapp.NewRetriever(sessionID, s.embedder, s.indexes, s.params, s.log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.retrievers[sessionID] = retriever
	s.mu.Unlock()

	s.log.Info("Retriever loaded", "sessionID", sessionID)
	return nil
}

// Invoke はユーザーメッセージに対する回答を生成します。
// 会話履歴がある場合は、まず履歴に依存しない独立した質問へ書き換えてから検索します。
// 回答の生成に成功した場合のみ、ユーザーメッセージと回答を履歴に追記します。
func (s *ChatService) Invoke(ctx context.Context, sessionID string, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", chatdomain.ErrEmptyMessage
	}

	s.mu.RLock()
	retriever, ok := s.retrievers[sessionID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: session %s", chatdomain.ErrNotInitialized, sessionID)
	}

	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return "", err
	}
	history = TrimHistory(history, s.historyWindow)

	query, err := s.reformulate(ctx, history, message)
	if err != nil {
		return "", err
	}

	hits, err := retriever.Retrieve(ctx, query)
	if err != nil {
		// クエリの埋め込みも外部プロバイダ呼び出しなので生成エラーとして扱う。
		// パラメータ不正はRetriever構築時に検出済みのため、ここには来ない。
		return "", chatdomain.NewGenerationError("document retrieval", err)
	}

	prompt := BuildAnswerPrompt(s.contextB.Build(hits), history, message)
	raw, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return "", chatdomain.NewGenerationError("answer generation", err)
	}
	answer := clampAnswer(raw)

	turn := sessiondomain.Turn{UserMessage: message, Answer: answer}
	if err := s.sessions.Append(ctx, sessionID, turn); err != nil {
		return "", fmt.Errorf("failed to append conversation turn: %w", err)
	}

	s.log.Info("Chat turn completed",
		"sessionID", sessionID,
		"historyMessages", len(history),
		"retrievedChunks", len(hits),
	)

	return answer, nil
}

// loadHistory はセッションの会話履歴を取得します(未作成なら空)
func (s *ChatService) loadHistory(ctx context.Context, sessionID string) ([]sessiondomain.Message, error) {
	found, err := s.sessions.Find(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation history: %w", err)
	}
	return found.OrElse(nil), nil
}

// reformulate は履歴がある場合に質問を独立した形へ書き換えます
func (s *ChatService) reformulate(ctx context.Context, history []sessiondomain.Message, message string) (string, error) {
	if len(history) == 0 {
		return message, nil
	}

	rewritten, err := s.llm.Generate(ctx, BuildReformulatePrompt(history, message))
	if err != nil {
		return "", chatdomain.NewGenerationError("question reformulation", err)
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return message, nil
	}

	s.log.Debug("Question reformulated", "original", message, "standalone", rewritten)
	return rewritten, nil
}

// clampAnswer は回答を1〜4096文字に正規化します
func clampAnswer(raw string) string {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		return fallbackAnswer
	}

	runes := []rune(answer)
	if len(runes) > maxAnswerLength {
		return string(runes[:maxAnswerLength])
	}
	return answer
}
