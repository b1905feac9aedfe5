package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	chatapp "github.com/jinford/doc-chat/internal/module/chat/application"
	indexfs "github.com/jinford/doc-chat/internal/module/index/adapter/fs"
	indexpg "github.com/jinford/doc-chat/internal/module/index/adapter/pg"
	indexapp "github.com/jinford/doc-chat/internal/module/index/application"
	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	"github.com/jinford/doc-chat/internal/module/ingest/adapter/loader"
	"github.com/jinford/doc-chat/internal/module/ingest/adapter/splitter"
	llmadapter "github.com/jinford/doc-chat/internal/module/llm/adapter"
	retrievaldomain "github.com/jinford/doc-chat/internal/module/retrieval/domain"
	sessionmemory "github.com/jinford/doc-chat/internal/module/session/adapter/memory"
	sessionsqlite "github.com/jinford/doc-chat/internal/module/session/adapter/sqlite"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
	"github.com/jinford/doc-chat/internal/platform/config"
	"github.com/jinford/doc-chat/pkg/db"
	"github.com/jinford/doc-chat/pkg/lock"
)

// Container はアプリケーション全体の依存関係を保持します
type Container struct {
	IndexService *indexapp.IndexService
	ChatService  *chatapp.ChatService
	Sessions     sessiondomain.Store
	Loader       *loader.Loader

	logger   *slog.Logger
	database *db.DB
	closers  []func() error
}

// New は設定から全サービスを構築します
func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{logger: logger}

	// Embedder / LLM (OpenAI)
	embedder, err := llmadapter.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("Embedder初期化に失敗しました: %w", err)
	}
	llmClient, err := llmadapter.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
	}

	// Splitter / TokenCounter
	split, err := splitter.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("Splitter初期化に失敗しました: %w", err)
	}
	tokenCounter, err := newTokenCounter()
	if err != nil {
		return nil, fmt.Errorf("TokenCounter初期化に失敗しました: %w", err)
	}

	// Index Repository (バックエンド選択)
	indexRepo, err := c.buildIndexRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Session Store
	sessions, err := c.buildSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	c.Sessions = sessions

	// Services
	c.IndexService = indexapp.NewIndexService(indexRepo, embedder, split, lock.NewKeyedRWMutex(), logger)

	params := retrievaldomain.Params{
		K:          cfg.Retrieval.K,
		FetchK:     cfg.Retrieval.FetchK,
		LambdaMult: cfg.Retrieval.LambdaMult,
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("検索パラメータが不正です: %w", err)
	}

	contextBuilder := chatapp.NewContextBuilder(tokenCounter, cfg.Retrieval.MaxContextToken)
	c.ChatService = chatapp.NewChatService(
		sessions,
		c.IndexService,
		embedder,
		llmClient,
		params,
		contextBuilder,
		cfg.Retrieval.HistoryWindow,
		logger,
	)

	c.Loader = loader.NewLoader(cfg.DataDir, logger)

	return c, nil
}

// buildIndexRepository はINDEX_BACKENDに応じたリポジトリを構築します
func (c *Container) buildIndexRepository(ctx context.Context, cfg *config.Config) (indexdomain.Repository, error) {
	switch cfg.IndexBackend {
	case "postgres":
		database, err := db.New(ctx, db.ConnectionParams{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.database = database

		repo := indexpg.NewRepository(database.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("スキーマ初期化に失敗しました: %w", err)
		}
		return repo, nil

	case "fs", "":
		return indexfs.NewRepository(cfg.IndexDir), nil

	default:
		return nil, fmt.Errorf("不明なインデックスバックエンドです: %s", cfg.IndexBackend)
	}
}

// buildSessionStore はSESSION_STOREに応じたセッションストアを構築します
func (c *Container) buildSessionStore(cfg *config.Config) (sessiondomain.Store, error) {
	switch cfg.SessionStore {
	case "sqlite":
		store, err := sessionsqlite.NewStore(cfg.SessionDBPath)
		if err != nil {
			return nil, fmt.Errorf("セッションストア初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, store.Close)
		return store, nil

	case "memory", "":
		return sessionmemory.NewStore(), nil

	default:
		return nil, fmt.Errorf("不明なセッションストアです: %s", cfg.SessionStore)
	}
}

// Close は内部リソースを解放します
func (c *Container) Close() {
	if c == nil {
		return
	}
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			c.logger.Warn("Failed to close resource", "error", err)
		}
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返します
func (c *Container) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// tokenCounter はtiktokenによるTokenCounter実装
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() (*tokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &tokenCounter{encoding: enc}, nil
}

func (t *tokenCounter) CountTokens(text string) int {
	if t.encoding == nil {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}
