package domain

import (
	"context"
	"errors"
)

// === Index Repository Port ===

// Repository はセッション別インデックスの永続化ポートです。
// 1セッションにつき1つの論理的な保存場所を持ちます。
type Repository interface {
	// Exists はセッションの永続化済みインデックスが存在するかを返します
	Exists(ctx context.Context, sessionID string) (bool, error)

	// Save はインデックスの現在の内容を保存します。
	// 呼び出しが戻った時点で、新しいプロセスのLoadから内容が見えることを保証します。
	Save(ctx context.Context, idx *Index) error

	// Load は永続化済みインデックスを復元します。
	// 存在しない場合はErrIndexNotFound、読み取れないか不整合な場合はErrIndexCorruptを返します。
	Load(ctx context.Context, sessionID string) (*Index, error)
}

// Embedder はインデックス構築時にチャンクをベクトル化するポートです
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingをまとめて生成します
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)
}

var (
	// ErrIndexNotFound は保存場所にインデックスが存在しない場合のエラー
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt は保存データが読み取れない・不整合な場合のエラー。
	// 該当セッションについては致命的で、自動修復は行いません。
	ErrIndexCorrupt = errors.New("index data corrupt")
)
