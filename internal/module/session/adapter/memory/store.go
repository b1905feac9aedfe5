package memory

import (
	"context"
	"sync"

	"github.com/samber/mo"

	"github.com/jinford/doc-chat/internal/module/session/domain"
)

// Store はメモリ上のセッション履歴ストアです。
// プロセス生存期間のみ履歴を保持します。
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Message
}

// NewStore は新しいメモリストアを作成します
func NewStore() *Store {
	return &Store{
		sessions: make(map[string][]domain.Message),
	}
}

var _ domain.Store = (*Store)(nil)

// Create はセッションを空の履歴で登録します
func (s *Store) Create(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = []domain.Message{}
	}
	return nil
}

// Find はセッションの履歴を返します
func (s *Store) Find(_ context.Context, sessionID string) (mo.Option[[]domain.Message], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return mo.None[[]domain.Message](), nil
	}

	cpy := make([]domain.Message, len(history))
	copy(cpy, history)
	return mo.Some(cpy), nil
}

// Append は会話1往復を履歴の末尾に追記します
func (s *Store) Append(_ context.Context, sessionID string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = append(s.sessions[sessionID], turn.Messages()...)
	return nil
}

// Clear はセッションの履歴を削除します
func (s *Store) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
