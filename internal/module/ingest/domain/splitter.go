package domain

import "errors"

// === Splitter Port ===

// Splitter はドキュメント列を固定長・オーバーラップ付きのチャンク列に分割するポートです。
// 同じ入力と同じパラメータに対して常に同じチャンク列を返すことが求められます。
type Splitter interface {
	Split(docs []Document) ([]Chunk, error)
}

var (
	// ErrInvalidChunkConfig は分割パラメータが不正な場合のエラー
	// (chunkOverlap >= chunkSize、またはいずれかが非正)
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
)
