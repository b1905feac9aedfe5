package domain

import "context"

// Client はテキスト生成LLMとの通信インターフェース。
// 質問の書き換えと回答生成の両方で使用します。
type Client interface {
	// Generate はプロンプトからテキストを生成する
	Generate(ctx context.Context, prompt string) (string, error)
}
