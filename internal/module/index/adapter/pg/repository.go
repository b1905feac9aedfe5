package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/doc-chat/internal/module/index/domain"
)

// Repository はインデックスをPostgreSQL(pgvector)に永続化するアダプターです。
// doc_sessionsがセッション1行、doc_chunksがチャンク1行を保持し、
// seq列で挿入順を保存します。
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository は新しいPostgreSQLリポジトリを作成します
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ domain.Repository = (*Repository)(nil)

// EnsureSchema は必要な拡張とテーブルを作成します
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS doc_sessions (
			session_id TEXT PRIMARY KEY,
			dimension  INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS doc_chunks (
			session_id  TEXT NOT NULL REFERENCES doc_sessions(session_id) ON DELETE CASCADE,
			fingerprint TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			source_id   TEXT NOT NULL,
			ordinal     INTEGER NOT NULL,
			byte_offset INTEGER NOT NULL,
			token_count INTEGER NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector NOT NULL,
			PRIMARY KEY (session_id, fingerprint)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS doc_chunks_session_seq_idx
			ON doc_chunks (session_id, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Exists はセッションのインデックスが存在するかを返します
func (r *Repository) Exists(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM doc_sessions WHERE session_id = $1)`,
		sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}
	return exists, nil
}

// Save はインデックス全体を1トランザクションで書き込みます。
// 既存のセッション行は次元を更新し、チャンクはフィンガープリント単位で
// 追記します(既存分はそのまま)。コミットが戻った時点で永続化済みです。
func (r *Repository) Save(ctx context.Context, idx *domain.Index) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO doc_sessions (session_id, dimension) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET dimension = EXCLUDED.dimension`,
		idx.SessionID(), idx.Dimension(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session row: %w", err)
	}

	for seq, e := range idx.Entries() {
		_, err = tx.Exec(ctx,
			`INSERT INTO doc_chunks
				(session_id, fingerprint, seq, source_id, ordinal, byte_offset, token_count, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (session_id, fingerprint) DO NOTHING`,
			idx.SessionID(),
			e.Fingerprint,
			seq,
			e.Chunk.SourceID,
			e.Chunk.Ordinal,
			e.Chunk.Offset,
			e.Chunk.TokenCount,
			e.Chunk.Text,
			pgvector.NewVector(e.Vector),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", e.Fingerprint, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load はセッションのインデックスを復元します
func (r *Repository) Load(ctx context.Context, sessionID string) (*domain.Index, error) {
	var dimension int
	err := r.pool.QueryRow(ctx,
		`SELECT dimension FROM doc_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: session %s", domain.ErrIndexNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to load session row: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT fingerprint, source_id, ordinal, byte_offset, token_count, content, embedding
		 FROM doc_chunks
		 WHERE session_id = $1
		 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var (
			e   domain.Entry
			vec pgvector.Vector
		)
		err := rows.Scan(
			&e.Fingerprint,
			&e.Chunk.SourceID,
			&e.Chunk.Ordinal,
			&e.Chunk.Offset,
			&e.Chunk.TokenCount,
			&e.Chunk.Text,
			&vec,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}
		e.Vector = vec.Slice()
		e.Chunk.Fingerprint = e.Fingerprint
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk rows: %w", err)
	}

	for _, e := range entries {
		if dimension > 0 && len(e.Vector) != dimension {
			return nil, fmt.Errorf("%w: chunk %s has dimension %d, session expects %d",
				domain.ErrIndexCorrupt, e.Fingerprint, len(e.Vector), dimension)
		}
	}

	return domain.Restore(sessionID, entries)
}
