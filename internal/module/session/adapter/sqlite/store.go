package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/samber/mo"

	"github.com/jinford/doc-chat/internal/module/session/domain"
)

// Store はSQLiteベースの永続セッション履歴ストアです。
// プロセス再起動をまたいで履歴を保持します。
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore は指定パスのSQLiteファイルを開き、スキーマを初期化します
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize session schema: %w", err)
	}

	return store, nil
}

var _ domain.Store = (*Store)(nil)

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		PRIMARY KEY (session_id, ordinal)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close はデータベース接続を閉じます
func (s *Store) Close() error {
	return s.db.Close()
}

// Create はセッションを空の履歴で登録します
func (s *Store) Create(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Find はセッションの履歴を返します(未登録セッションは None)
func (s *Store) Find(ctx context.Context, sessionID string) (mo.Option[[]domain.Message], error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return mo.None[[]domain.Message](), fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return mo.None[[]domain.Message](), nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM messages WHERE session_id = ? ORDER BY ordinal`, sessionID)
	if err != nil {
		return mo.None[[]domain.Message](), fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	history := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return mo.None[[]domain.Message](), fmt.Errorf("failed to scan message: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return mo.None[[]domain.Message](), fmt.Errorf("failed to iterate history: %w", err)
	}

	return mo.Some(history), nil
}

// Append は会話1往復をトランザクションで追記します
func (s *Store) Append(ctx context.Context, sessionID string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id) VALUES (?)`, sessionID); err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM messages WHERE session_id = ?`,
		sessionID).Scan(&next); err != nil {
		return fmt.Errorf("failed to compute next ordinal: %w", err)
	}

	for i, msg := range turn.Messages() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, ordinal, role, content) VALUES (?, ?, ?, ?)`,
			sessionID, next+i, string(msg.Role), msg.Content); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// Clear はセッションと履歴を削除します
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return tx.Commit()
}
