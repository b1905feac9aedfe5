package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound は指定セッションのインデックスが存在しない場合のエラー
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotInitialized はRetrieverのロード前に応答生成を呼び出した場合のエラー
	ErrNotInitialized = errors.New("retriever not initialized")

	// ErrEmptyMessage は空のユーザーメッセージに対するエラー
	ErrEmptyMessage = errors.New("message must not be empty")
)

// GenerationError はLLMによる応答生成の失敗を表します。
// どの段階(質問の再定式化・回答生成)で失敗したかと、
// プロバイダー由来の元エラーを保持します。
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed during %s: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationError は新しいGenerationErrorを作成します
func NewGenerationError(stage string, err error) *GenerationError {
	return &GenerationError{Stage: stage, Err: err}
}
