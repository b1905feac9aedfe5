package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// OpenAI設定(Embeddings + LLM)
	OpenAI OpenAIConfig

	// ドキュメント保存ディレクトリ(アップロード原本)
	DataDir string

	// セッション別インデックスの保存ディレクトリ
	IndexDir string

	// インデックスの永続化バックエンド("fs" or "postgres")
	IndexBackend string

	// セッション履歴ストア("memory" or "sqlite")
	SessionStore string

	// SessionDBPath はsqliteセッションストアのファイルパス
	SessionDBPath string

	// Database設定(IndexBackend=postgresの場合のみ使用)
	Database DatabaseConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 検索設定
	Retrieval RetrievalConfig

	// HTTPサーバ設定
	HTTPAddr string

	// ログレベル("debug", "info", "warn", "error")
	LogLevel string
}

// OpenAIConfig はOpenAI API設定(Embeddings + LLM)
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ChunkingConfig はドキュメント分割の設定
type ChunkingConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// RetrievalConfig はMMR検索とコンテキスト構築の設定
type RetrievalConfig struct {
	K               int
	FetchK          int
	LambdaMult      float64
	MaxContextToken int
	HistoryWindow   int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない(環境変数のみで動作可能)
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		DataDir:       getEnv("DOCCHAT_DATA_DIR", "data"),
		IndexDir:      getEnv("DOCCHAT_INDEX_DIR", "index"),
		IndexBackend:  getEnv("DOCCHAT_INDEX_BACKEND", "fs"),
		SessionStore:  getEnv("DOCCHAT_SESSION_STORE", "memory"),
		SessionDBPath: getEnv("DOCCHAT_SESSION_DB", "data/sessions.db"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "docchat"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "docchat"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Chunking: ChunkingConfig{
			ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 200),
		},
		Retrieval: RetrievalConfig{
			K:               getEnvAsInt("RETRIEVAL_K", 5),
			FetchK:          getEnvAsInt("RETRIEVAL_FETCH_K", 20),
			LambdaMult:      getEnvAsFloat("RETRIEVAL_LAMBDA", 0.5),
			MaxContextToken: getEnvAsInt("CONTEXT_MAX_TOKENS", 8000),
			HistoryWindow:   getEnvAsInt("HISTORY_WINDOW", 6),
		},
		HTTPAddr: getEnv("DOCCHAT_HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
