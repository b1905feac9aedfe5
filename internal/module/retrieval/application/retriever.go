package application

import (
	"context"
	"fmt"
	"log/slog"

	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	retrievaldomain "github.com/jinford/doc-chat/internal/module/retrieval/domain"
)

// QueryEmbedder はクエリテキストをベクトル化するポート
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Searcher はセッションのインデックスに対する近傍検索のポート
type Searcher interface {
	Search(ctx context.Context, sessionID string, queryVector []float32, limit int) ([]indexdomain.SearchHit, error)
}

// Retriever は1セッションに紐づくMMR検索を提供します。
// クエリをベクトル化し、FetchK件の近傍候補からMMRでK件を選択します。
type Retriever struct {
	sessionID string
	embedder  QueryEmbedder
	searcher  Searcher
	params    retrievaldomain.Params
	log       *slog.Logger
}

// NewRetriever は新しいRetrieverを作成します。パラメータが不正な場合はエラーを返します。
func NewRetriever(
	sessionID string,
	embedder QueryEmbedder,
	searcher Searcher,
	params retrievaldomain.Params,
	log *slog.Logger,
) (*Retriever, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Retriever{
		sessionID: sessionID,
		embedder:  embedder,
		searcher:  searcher,
		params:    params,
		log:       log,
	}, nil
}

// SessionID はこのRetrieverが紐づくセッションIDを返します
func (r *Retriever) SessionID() string {
	return r.sessionID
}

// Retrieve はクエリに対するMMR選択済みチャンク列を返します
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]indexdomain.SearchHit, error) {
	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := r.searcher.Search(ctx, r.sessionID, queryVector, r.params.FetchK)
	if err != nil {
		return nil, err
	}

	selected, err := retrievaldomain.SelectMMR(candidates, r.params)
	if err != nil {
		return nil, err
	}

	r.log.Debug("Retrieved chunks",
		"sessionID", r.sessionID,
		"candidates", len(candidates),
		"selected", len(selected),
	)

	return selected, nil
}
