package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	indexdomain "github.com/jinford/doc-chat/internal/module/index/domain"
	ingestdomain "github.com/jinford/doc-chat/internal/module/ingest/domain"
	"github.com/jinford/doc-chat/pkg/lock"
)

// IndexService はセッション別インデックスのユースケースを提供します。
// セッションIDごとの読み書きロックで更新を単一ライターに直列化し、
// AddDocumentsが戻った時点でインデックスが永続化済みであることを保証します。
type IndexService struct {
	repo     indexdomain.Repository
	embedder indexdomain.Embedder
	splitter ingestdomain.Splitter
	locks    *lock.KeyedRWMutex
	log      *slog.Logger
}

// NewIndexService は新しいIndexServiceを作成します
func NewIndexService(
	repo indexdomain.Repository,
	embedder indexdomain.Embedder,
	splitter ingestdomain.Splitter,
	locks *lock.KeyedRWMutex,
	log *slog.Logger,
) *IndexService {
	return &IndexService{
		repo:     repo,
		embedder: embedder,
		splitter: splitter,
		locks:    locks,
		log:      log,
	}
}

// Exists はセッションの永続化済みインデックスが存在するかを返します
func (s *IndexService) Exists(ctx context.Context, sessionID string) (bool, error) {
	unlock := s.locks.RLock(sessionID)
	defer unlock()

	return s.repo.Exists(ctx, sessionID)
}

// AddDocuments はドキュメント列を分割・ベクトル化してセッションのインデックスに追加し、
// 実際に追加されたチャンク数を返します。既存のフィンガープリントと一致するチャンクは
// 黙ってスキップされるため、同じドキュメント列での再実行は冪等です。
// 戻った時点で追加分は永続化済みです。
func (s *IndexService) AddDocuments(ctx context.Context, sessionID string, docs []ingestdomain.Document) (int, error) {
	chunks, err := s.splitter.Split(docs)
	if err != nil {
		return 0, fmt.Errorf("failed to split documents: %w", err)
	}
	if len(chunks) == 0 {
		s.log.Info("No chunks produced from documents", "sessionID", sessionID, "documents", len(docs))
		// 空の追加でもインデックス自体は作成する
		return 0, s.ensureIndex(ctx, sessionID)
	}

	// Embeddingの生成はロック外で行う。外部API呼び出しの間、
	// 同一セッションの読み取りをブロックしないため。
	// 重複チャンクのベクトルも計算してしまうが、追加時に捨てるだけで害はない。
	vectors, err := s.embedVectors(ctx, chunks)
	if err != nil {
		return 0, err
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	idx, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	added := 0
	for i, chunk := range chunks {
		ok := idx.Add(indexdomain.Entry{
			Fingerprint: chunk.Fingerprint,
			Vector:      vectors[i],
			Chunk:       chunk,
		})
		if ok {
			added++
		}
	}

	if err := s.repo.Save(ctx, idx); err != nil {
		return 0, fmt.Errorf("failed to persist index: %w", err)
	}

	s.log.Info("Documents indexed",
		"sessionID", sessionID,
		"documents", len(docs),
		"chunks", len(chunks),
		"added", added,
		"skipped", len(chunks)-added,
		"total", idx.Len(),
	)

	return added, nil
}

// Search はセッションのインデックスに対して近傍検索を実行します
func (s *IndexService) Search(ctx context.Context, sessionID string, queryVector []float32, limit int) ([]indexdomain.SearchHit, error) {
	unlock := s.locks.RLock(sessionID)
	defer unlock()

	idx, err := s.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return idx.Search(queryVector, limit), nil
}

// Load はセッションのインデックスを復元します
func (s *IndexService) Load(ctx context.Context, sessionID string) (*indexdomain.Index, error) {
	unlock := s.locks.RLock(sessionID)
	defer unlock()

	return s.repo.Load(ctx, sessionID)
}

// embedBatchSize はBatchEmbedに一度に渡すテキスト数の上限
const embedBatchSize = 100

// embedVectors は全チャンクのベクトルをバッチで生成します
func (s *IndexService) embedVectors(ctx context.Context, chunks []ingestdomain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batchVectors, err := s.embedder.BatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		vectors = append(vectors, batchVectors...)
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return vectors, nil
}

// loadOrCreate は既存インデックスを復元するか、未存在なら空で作成します。
// 呼び出し側が書き込みロックを保持していることが前提です。
func (s *IndexService) loadOrCreate(ctx context.Context, sessionID string) (*indexdomain.Index, error) {
	idx, err := s.repo.Load(ctx, sessionID)
	if err == nil {
		return idx, nil
	}
	if errors.Is(err, indexdomain.ErrIndexNotFound) {
		return indexdomain.NewIndex(sessionID), nil
	}
	return nil, err
}

// ensureIndex は空のインデックスを必要に応じて作成・永続化します
func (s *IndexService) ensureIndex(ctx context.Context, sessionID string) error {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	exists, err := s.repo.Exists(ctx, sessionID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.repo.Save(ctx, indexdomain.NewIndex(sessionID))
}
