package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Document は取り込み対象の正規化済みドキュメントを表します。
// ファイル形式ごとの解釈はDocument Loaderの責務で、コアはこの形式のみを受け取ります。
type Document struct {
	// SourceID はドキュメントの識別子(保存ファイル名など)
	SourceID string

	// Text は抽出済みの全文テキスト
	Text string
}

// Chunk はドキュメントの連続した一部分を表します。作成後は不変です。
type Chunk struct {
	// Text はチャンク本文
	Text string `json:"text"`

	// SourceID は元ドキュメントの識別子
	SourceID string `json:"sourceID"`

	// Ordinal は同一ドキュメント内での通し番号
	Ordinal int `json:"ordinal"`

	// Offset は元テキスト中の開始位置(rune単位)
	Offset int `json:"offset"`

	// TokenCount はチャンク本文のトークン数
	TokenCount int `json:"tokenCount"`

	// Fingerprint は重複排除キー(正規化テキストの決定的ハッシュ)
	Fingerprint string `json:"fingerprint"`
}

// NewFingerprint はチャンクの重複排除キーを計算します。
// テキストは空白を正規化した上で、ソース識別子と連結してsha256でハッシュ化します。
// 同じドキュメントを同じパラメータで分割すれば常に同じ値になります。
func NewFingerprint(sourceID, text string) string {
	normalized := NormalizeText(text)
	h := sha256.Sum256([]byte(sourceID + "\x00" + normalized))
	return hex.EncodeToString(h[:])
}

// NormalizeText は空白の揺れを吸収した比較用テキストを返します
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
