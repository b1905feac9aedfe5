package domain

import "errors"

var (
	// ErrRateLimitExceeded はレート制限を超えた場合のエラー
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMaxRetriesExceeded は最大リトライ回数を超えた場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
