package domain

import (
	"context"

	"github.com/samber/mo"
)

// === Session Store Port ===

// Store はセッション履歴の永続化ポートです。
// 履歴はセッション生存期間中は追記のみで、切り詰めはストアの外側の方針です。
type Store interface {
	// Create はセッションを空の履歴で登録します
	Create(ctx context.Context, sessionID string) error

	// Find はセッションの履歴を返します(存在しなければ None)
	Find(ctx context.Context, sessionID string) (mo.Option[[]Message], error)

	// Append は会話1往復を履歴の末尾に追記します
	Append(ctx context.Context, sessionID string, turn Turn) error

	// Clear はセッションの履歴を削除します
	Clear(ctx context.Context, sessionID string) error
}
