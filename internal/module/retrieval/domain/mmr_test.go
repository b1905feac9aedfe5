package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
)

func hit(text string, vector []float32, score float64, rank int) indexdomain.SearchHit {
	return indexdomain.SearchHit{
		Entry: indexdomain.Entry{
			Fingerprint: text,
			Vector:      vector,
			Chunk:       ingestdomain.Chunk{Text: text},
		},
		Score:     score,
		FetchRank: rank,
	}
}

func texts(hits []indexdomain.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Entry.Chunk.Text
	}
	return out
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "valid", params: Params{K: 5, FetchK: 20, LambdaMult: 0.5}},
		{name: "lambda 0", params: Params{K: 1, FetchK: 1, LambdaMult: 0}},
		{name: "lambda 1", params: Params{K: 1, FetchK: 1, LambdaMult: 1}},
		{name: "k zero", params: Params{K: 0, FetchK: 20, LambdaMult: 0.5}, wantErr: true},
		{name: "k negative", params: Params{K: -1, FetchK: 20, LambdaMult: 0.5}, wantErr: true},
		{name: "fetchK below k", params: Params{K: 5, FetchK: 4, LambdaMult: 0.5}, wantErr: true},
		{name: "lambda below range", params: Params{K: 5, FetchK: 20, LambdaMult: -0.1}, wantErr: true},
		{name: "lambda above range", params: Params{K: 5, FetchK: 20, LambdaMult: 1.1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSelectMMR_InvalidParams(t *testing.T) {
	_, err := SelectMMR(nil, Params{K: 0, FetchK: 10, LambdaMult: 0.5})
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestSelectMMR_FewerCandidatesThanK(t *testing.T) {
	candidates := []indexdomain.SearchHit{
		hit("a", []float32{1, 0}, 0.9, 0),
		hit("b", []float32{0, 1}, 0.8, 1),
	}

	selected, err := SelectMMR(candidates, Params{K: 5, FetchK: 5, LambdaMult: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, texts(selected))
}

func TestSelectMMR_PureRelevance(t *testing.T) {
	// λ=1では類似度順そのまま
	candidates := []indexdomain.SearchHit{
		hit("best", []float32{1, 0, 0}, 0.95, 0),
		hit("near-duplicate", []float32{0.99, 0.01, 0}, 0.94, 1),
		hit("different", []float32{0, 1, 0}, 0.5, 2),
	}

	selected, err := SelectMMR(candidates, Params{K: 2, FetchK: 3, LambdaMult: 1.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "near-duplicate"}, texts(selected))
}

func TestSelectMMR_PenalizesNearDuplicates(t *testing.T) {
	// λ=0.5では1位とほぼ同一の候補より、関連度は低いが異なる候補を選ぶ
	candidates := []indexdomain.SearchHit{
		hit("best", []float32{1, 0, 0}, 0.95, 0),
		hit("near-duplicate", []float32{0.99, 0.01, 0}, 0.94, 1),
		hit("different", []float32{0, 1, 0}, 0.5, 2),
	}

	selected, err := SelectMMR(candidates, Params{K: 2, FetchK: 3, LambdaMult: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"best", "different"}, texts(selected))
}

func TestSelectMMR_PureDiversity(t *testing.T) {
	// λ=0では初回はタイブレーク(クエリ類似度)で決まり、
	// 以降は選択済みから最も遠い候補を選ぶ
	candidates := []indexdomain.SearchHit{
		hit("first", []float32{1, 0}, 0.9, 0),
		hit("same-direction", []float32{2, 0}, 0.85, 1),
		hit("orthogonal", []float32{0, 1}, 0.3, 2),
	}

	selected, err := SelectMMR(candidates, Params{K: 2, FetchK: 3, LambdaMult: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "orthogonal"}, texts(selected))
}

func TestSelectMMR_TieBreaksByQuerySimilarityThenRank(t *testing.T) {
	// 全ベクトルが直交しているのでMMRスコアは関連度のみで決まる。
	// スコア同点の2件はFetchRankの小さい方が先に選ばれる。
	candidates := []indexdomain.SearchHit{
		hit("tie-first", []float32{0, 0, 1, 0}, 0.7, 0),
		hit("tie-second", []float32{0, 1, 0, 0}, 0.7, 1),
		hit("lower", []float32{1, 0, 0, 0}, 0.6, 2),
		hit("lowest", []float32{0, 0, 0, 1}, 0.1, 3),
	}

	selected, err := SelectMMR(candidates, Params{K: 3, FetchK: 4, LambdaMult: 1.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"tie-first", "tie-second", "lower"}, texts(selected))
}

func TestSelectMMR_Deterministic(t *testing.T) {
	candidates := []indexdomain.SearchHit{
		hit("a", []float32{1, 0.2, 0}, 0.9, 0),
		hit("b", []float32{0.9, 0.3, 0.1}, 0.85, 1),
		hit("c", []float32{0.1, 1, 0}, 0.6, 2),
		hit("d", []float32{0, 0.1, 1}, 0.4, 3),
	}
	params := Params{K: 3, FetchK: 4, LambdaMult: 0.5}

	first, err := SelectMMR(candidates, params)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := SelectMMR(candidates, params)
		require.NoError(t, err)
		assert.Equal(t, texts(first), texts(again))
	}
}

func TestSelectMMR_DoesNotMutateInput(t *testing.T) {
	candidates := []indexdomain.SearchHit{
		hit("a", []float32{1, 0}, 0.9, 0),
		hit("b", []float32{0, 1}, 0.8, 1),
		hit("c", []float32{1, 1}, 0.7, 2),
	}

	_, err := SelectMMR(candidates, Params{K: 2, FetchK: 3, LambdaMult: 0.5})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, texts(candidates))
}
