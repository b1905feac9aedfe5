package lock

import "sync"

// KeyedRWMutex はセッションIDごとの読み書きロックを管理します。
// 同一セッションのインデックス更新は単一ライターに直列化し、
// 読み取り(ロード・検索)同士は並行に実行できます。
// セッションIDが異なればロックは完全に独立です。
type KeyedRWMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewKeyedRWMutex は新しいKeyedRWMutexを作成します
func NewKeyedRWMutex() *KeyedRWMutex {
	return &KeyedRWMutex{
		locks: make(map[string]*sync.RWMutex),
	}
}

// get はキーに対応するロックを取得します(なければ作成)
func (m *KeyedRWMutex) get(key string) *sync.RWMutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &sync.RWMutex{}
		m.locks[key] = l
	}
	return l
}

// Lock はキーに対する書き込みロックを取得し、解放関数を返します
func (m *KeyedRWMutex) Lock(key string) func() {
	l := m.get(key)
	l.Lock()
	return l.Unlock
}

// RLock はキーに対する読み取りロックを取得し、解放関数を返します
func (m *KeyedRWMutex) RLock(key string) func() {
	l := m.get(key)
	l.RLock()
	return l.RUnlock
}
