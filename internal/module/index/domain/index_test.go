package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
)

func entry(fp string, vec []float32) Entry {
	return Entry{
		Fingerprint: fp,
		Vector:      vec,
		Chunk:       ingestdomain.Chunk{Text: fp, SourceID: "a.txt", Fingerprint: fp},
	}
}

func TestIndex_AddRejectsDuplicateFingerprint(t *testing.T) {
	idx := NewIndex("session_a")

	assert.True(t, idx.Add(entry("fp1", []float32{1, 0})))
	assert.False(t, idx.Add(entry("fp1", []float32{0, 1})))
	assert.Equal(t, 1, idx.Len())
}

func TestRestore_RejectsDuplicates(t *testing.T) {
	_, err := Restore("session_a", []Entry{
		entry("fp1", []float32{1, 0}),
		entry("fp1", []float32{0, 1}),
	})
	require.ErrorIs(t, err, ErrIndexCorrupt)
}

func TestIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx := NewIndex("session_a")
	require.True(t, idx.Add(entry("far", []float32{0, 1})))
	require.True(t, idx.Add(entry("near", []float32{1, 0.01})))
	require.True(t, idx.Add(entry("mid", []float32{1, 1})))

	hits := idx.Search([]float32{1, 0}, 3)
	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].Entry.Fingerprint)
	assert.Equal(t, "mid", hits[1].Entry.Fingerprint)
	assert.Equal(t, "far", hits[2].Entry.Fingerprint)
	assert.Equal(t, 0, hits[0].FetchRank)
	assert.Equal(t, 2, hits[2].FetchRank)
}

func TestIndex_SearchTiesKeepInsertionOrder(t *testing.T) {
	idx := NewIndex("session_a")
	require.True(t, idx.Add(entry("first", []float32{1, 0})))
	require.True(t, idx.Add(entry("second", []float32{2, 0}))) // 同一方向なので同スコア

	hits := idx.Search([]float32{1, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, "first", hits[0].Entry.Fingerprint)
	assert.Equal(t, "second", hits[1].Entry.Fingerprint)
}

func TestIndex_SearchLimitsResults(t *testing.T) {
	idx := NewIndex("session_a")
	for _, fp := range []string{"a", "b", "c", "d"} {
		require.True(t, idx.Add(entry(fp, []float32{1, 0})))
	}

	hits := idx.Search([]float32{1, 0}, 2)
	assert.Len(t, hits, 2)
}

func TestIndex_SearchEmptyIndex(t *testing.T) {
	idx := NewIndex("session_a")
	assert.Empty(t, idx.Search([]float32{1, 0}, 5))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)

	// 長さ不一致・ゼロベクトルは0
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
