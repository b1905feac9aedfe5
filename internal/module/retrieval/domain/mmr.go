package domain

import (
	"errors"
	"fmt"
	"math"

	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
)

var (
	// ErrInvalidParameter は検索パラメータが不正な場合のエラー
	ErrInvalidParameter = errors.New("invalid retrieval parameter")
)

// Params はMMR検索のパラメータです
type Params struct {
	// K は最終的に返すチャンク数
	K int

	// FetchK はMMR選択の候補として取り出す近傍数(K以上)
	FetchK int

	// LambdaMult は関連度と多様性のバランス(1.0=関連度のみ、0.0=多様性のみ)
	LambdaMult float64
}

// Validate はパラメータの妥当性を検証します
func (p Params) Validate() error {
	if p.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidParameter, p.K)
	}
	if p.FetchK < p.K {
		return fmt.Errorf("%w: fetchK (%d) must be >= k (%d)", ErrInvalidParameter, p.FetchK, p.K)
	}
	if p.LambdaMult < 0 || p.LambdaMult > 1 {
		return fmt.Errorf("%w: lambdaMult must be in [0, 1], got %g", ErrInvalidParameter, p.LambdaMult)
	}
	return nil
}

// SelectMMR はMaximal Marginal Relevanceによる貪欲選択を実行します。
// 各ステップで λ*関連度 - (1-λ)*選択済みとの最大類似度 が最大の候補を選びます。
// スコアが同点の場合はクエリとの生の類似度が高い方、それも同点なら
// 候補リストでの取得順が早い方を選ぶため、結果は決定的です。
// 候補がK件に満たない場合は全候補を返します。
func SelectMMR(candidates []indexdomain.SearchHit, params Params) ([]indexdomain.SearchHit, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if len(candidates) <= params.K {
		out := make([]indexdomain.SearchHit, len(candidates))
		copy(out, candidates)
		return out, nil
	}

	lambda := params.LambdaMult
	selected := make([]indexdomain.SearchHit, 0, params.K)
	remaining := append([]indexdomain.SearchHit(nil), candidates...)

	for len(selected) < params.K && len(remaining) > 0 {
		bestIdx := -1
		best := math.Inf(-1)

		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := indexdomain.CosineSimilarity(cand.Entry.Vector, sel.Entry.Vector); sim > maxSim {
					maxSim = sim
				}
			}

			score := lambda*cand.Score - (1-lambda)*maxSim

			if bestIdx < 0 || better(score, cand, best, remaining[bestIdx]) {
				best = score
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}

// better はMMRスコア・クエリ類似度・取得順の優先度で候補を比較します
func better(score float64, cand indexdomain.SearchHit, bestScore float64, best indexdomain.SearchHit) bool {
	if score != bestScore {
		return score > bestScore
	}
	if cand.Score != best.Score {
		return cand.Score > best.Score
	}
	return cand.FetchRank < best.FetchRank
}
