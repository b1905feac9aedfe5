package domain

import (
	"fmt"
	"sort"

	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
)

// Entry はインデックスに格納された1チャンク分のデータです
type Entry struct {
	Fingerprint string
	Vector      []float32
	Chunk       ingestdomain.Chunk
}

// Index はセッション1つ分のベクトルインデックスです。
// フィンガープリントをキーに重複を排除し、全ベクトルに対する近傍検索を提供します。
// 1つのセッションが排他的に所有し、セッション間で共有されることはありません。
type Index struct {
	sessionID     string
	dimension     int
	entries       []Entry
	byFingerprint map[string]int
}

// NewIndex は空のインデックスを作成します
func NewIndex(sessionID string) *Index {
	return &Index{
		sessionID:     sessionID,
		byFingerprint: make(map[string]int),
	}
}

// Restore は永続化済みエントリ列からインデックスを復元します。
// フィンガープリントの重複や次元の不一致は永続化データの破損として扱います。
func Restore(sessionID string, entries []Entry) (*Index, error) {
	idx := NewIndex(sessionID)
	for _, e := range entries {
		if !idx.Add(e) {
			return nil, fmt.Errorf("%w: duplicate fingerprint %s", ErrIndexCorrupt, e.Fingerprint)
		}
	}
	return idx, nil
}

// SessionID はこのインデックスを所有するセッションIDを返します
func (idx *Index) SessionID() string {
	return idx.sessionID
}

// Len は格納済みエントリ数を返します
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Dimension は格納ベクトルの次元数を返します(空のときは0)
func (idx *Index) Dimension() int {
	return idx.dimension
}

// Has はフィンガープリントが登録済みかどうかを返します
func (idx *Index) Has(fingerprint string) bool {
	_, ok := idx.byFingerprint[fingerprint]
	return ok
}

// Add はエントリを追加します。同一フィンガープリントが既に存在する場合は
// 何もせずfalseを返します。
func (idx *Index) Add(e Entry) bool {
	if idx.Has(e.Fingerprint) {
		return false
	}

	if idx.dimension == 0 {
		idx.dimension = len(e.Vector)
	}

	idx.byFingerprint[e.Fingerprint] = len(idx.entries)
	idx.entries = append(idx.entries, e)
	return true
}

// Entries は全エントリを挿入順で返します(永続化用のコピー)
func (idx *Index) Entries() []Entry {
	cpy := make([]Entry, len(idx.entries))
	copy(cpy, idx.entries)
	return cpy
}

// Fingerprints は登録済みフィンガープリント集合を挿入順で返します
func (idx *Index) Fingerprints() []string {
	fps := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		fps[i] = e.Fingerprint
	}
	return fps
}

// SearchHit は近傍検索の結果1件を表します(クエリ時のみ存在し、永続化されません)
type SearchHit struct {
	Entry Entry

	// Score はクエリとのコサイン類似度
	Score float64

	// FetchRank は検索結果内の順位(0始まり、同点時の決定的なタイブレークに使用)
	FetchRank int
}

// Search はクエリベクトルに近い順に最大limit件のエントリを返します。
// 同点は挿入順を保ちます。
func (idx *Index) Search(queryVector []float32, limit int) []SearchHit {
	if limit <= 0 || len(idx.entries) == 0 {
		return nil
	}

	hits := make([]SearchHit, len(idx.entries))
	for i, e := range idx.entries {
		hits[i] = SearchHit{
			Entry: e,
			Score: CosineSimilarity(queryVector, e.Vector),
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	for i := range hits {
		hits[i].FetchRank = i
	}

	return hits
}
