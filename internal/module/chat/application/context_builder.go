package application

import (
	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	sessiondomain "github.com/jinford/doc-chat/internal/module/session/domain"
)

// TokenCounter はテキストのトークン数を数えるポート
type TokenCounter interface {
	CountTokens(text string) int
}

// ContextBuilder はトークン予算内でLLMコンテキストを構築します。
// MMRの選択順を保ったまま、予算を超える位置以降のチャンクを落とします。
type ContextBuilder struct {
	counter   TokenCounter
	maxTokens int
}

// NewContextBuilder は新しいContextBuilderを作成します
func NewContextBuilder(counter TokenCounter, maxTokens int) *ContextBuilder {
	return &ContextBuilder{
		counter:   counter,
		maxTokens: maxTokens,
	}
}

// Build はチャンク列を予算内に収めてコンテキストテキストに整形します。
// 先頭チャンク単体が予算を超える場合でも、最低1件は含めます。
func (cb *ContextBuilder) Build(hits []indexdomain.SearchHit) string {
	if cb.maxTokens <= 0 {
		return BuildDocumentContext(hits)
	}

	kept := hits[:0:0]
	used := 0
	for _, h := range hits {
		tokens := h.Entry.Chunk.TokenCount
		if tokens == 0 {
			tokens = cb.counter.CountTokens(h.Entry.Chunk.Text)
		}
		if len(kept) > 0 && used+tokens > cb.maxTokens {
			break
		}
		kept = append(kept, h)
		used += tokens
	}

	return BuildDocumentContext(kept)
}

// TrimHistory は直近windowターン分(メッセージ2*window件)の履歴を返します。
// windowが0以下の場合は履歴を使いません。
func TrimHistory(history []sessiondomain.Message, window int) []sessiondomain.Message {
	if window <= 0 {
		return nil
	}
	max := window * 2
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}
