package splitter

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/doc-chat/internal/module/ingest/domain"
)

// Splitter は再帰的文字分割でドキュメントをチャンク化します。
// 段落 → 改行 → 文 → 単語の順に境界を優先し、ウィンドウ内に境界が
// 見つからない場合のみハードカットします。
type Splitter struct {
	encoder      *tiktoken.Tiktoken
	chunkSize    int
	chunkOverlap int
}

// 境界の優先順位(rune列で保持し、バイト位置とのずれを避ける)
var boundaries = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune(" "),
}

// New は新しいSplitterを作成します。
// chunkSize・chunkOverlapの単位はruneです。
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 || chunkOverlap <= 0 {
		return nil, fmt.Errorf("%w: chunkSize=%d, chunkOverlap=%d (both must be positive)",
			domain.ErrInvalidChunkConfig, chunkSize, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunkOverlap=%d must be smaller than chunkSize=%d",
			domain.ErrInvalidChunkConfig, chunkOverlap, chunkSize)
	}

	// cl100k_baseエンコーダを使用(OpenAIのtext-embedding-3-smallと互換)
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}

	return &Splitter{
		encoder:      encoder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

var _ domain.Splitter = (*Splitter)(nil)

// Split はドキュメント列をチャンク列に変換します。
// 出力順はドキュメント順・ドキュメント内の出現順で、入力が同じなら常に同じ結果です。
func (s *Splitter) Split(docs []domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk

	for _, doc := range docs {
		pieces := s.splitText(doc.Text)
		for i, p := range pieces {
			chunks = append(chunks, domain.Chunk{
				Text:        p.text,
				SourceID:    doc.SourceID,
				Ordinal:     i,
				Offset:      p.offset,
				TokenCount:  len(s.encoder.Encode(p.text, nil, nil)),
				Fingerprint: domain.NewFingerprint(doc.SourceID, p.text),
			})
		}
	}

	return chunks, nil
}

// piece は分割途中のテキスト片(本文と元テキスト中のrune位置)
type piece struct {
	text   string
	offset int
}

// splitText はテキストをウィンドウ走査で分割します
func (s *Splitter) splitText(text string) []piece {
	runes := []rune(text)
	var pieces []piece

	pos := 0
	for pos < len(runes) {
		end := pos + s.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.findCut(runes, pos, end)
		}

		seg := trimSpace(runes[pos:end])
		if seg != "" {
			pieces = append(pieces, piece{text: seg, offset: pos})
		}

		if end == len(runes) {
			break
		}

		next := end - s.chunkOverlap
		if next <= pos {
			// オーバーラップがウィンドウ全体を覆う場合でも必ず前進する
			next = pos + 1
		}
		pos = next
	}

	return pieces
}

// findCut はウィンドウ内の最適な切断位置を返します。
// 優先順位の高い境界から順に最後の出現位置を探し、利用可能な境界が
// 1つもない場合のみハードカットします。オーバーラップ分を差し引いた
// 次の開始位置が前進しなくなる境界(ウィンドウ先頭のオーバーラップ領域内)は
// 利用できないものとして扱います。
func (s *Splitter) findCut(runes []rune, start, limit int) int {
	window := runes[start:limit]

	for _, sep := range boundaries {
		if idx := lastIndex(window, sep); idx >= 0 {
			cut := idx + len(sep)
			if cut > s.chunkOverlap {
				return start + cut
			}
		}
	}

	return limit
}

// lastIndex はrune列中の部分列の最後の出現位置を返します(なければ-1)
func lastIndex(window, sep []rune) int {
	for i := len(window) - len(sep); i >= 0; i-- {
		match := true
		for j := range sep {
			if window[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// trimSpace はrune列の先頭・末尾の空白を除いた文字列を返します
func trimSpace(runes []rune) string {
	start := 0
	end := len(runes)
	for start < end && isSpace(runes[start]) {
		start++
	}
	for end > start && isSpace(runes[end-1]) {
		end--
	}
	return string(runes[start:end])
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
