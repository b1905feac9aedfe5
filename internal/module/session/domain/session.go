package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID は新しいセッションIDを生成します。
// 形式は "session_<YYYYMMDD_HHMMSS>_<8桁hex>" で、作成時刻順にソート可能です。
// ランダムサフィックスはUUIDv4由来の32bitで、同一時刻の衝突を防ぎます。
func NewID() string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("session_%s_%s", timestamp, suffix)
}

// Role はメッセージの発話者種別を表します
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message は会話履歴の1メッセージを表します
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn は1往復の会話(ユーザー発話と回答)を表します
type Turn struct {
	UserMessage string
	Answer      string
}

// Messages はTurnを履歴メッセージ2件に展開します
func (t Turn) Messages() []Message {
	return []Message{
		{Role: RoleUser, Content: t.UserMessage},
		{Role: RoleAssistant, Content: t.Answer},
	}
}
