package domain

import "context"

// Embedder はテキストをベクトル表現に変換するインターフェース。
// 同一セッションの生存期間中、同じ入力に対して同じベクトルを返すことを前提とします
// (非決定的なEmbedderはインデックスの冪等性を壊します)。
type Embedder interface {
	// Embed はテキストからEmbeddingベクトルを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery は検索クエリからEmbeddingベクトルを生成する
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int
}
