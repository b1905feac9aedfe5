package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRWMutex_SerializesWritersPerKey(t *testing.T) {
	m := NewKeyedRWMutex()

	const iterations = 1000
	counter := 0

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range iterations {
				unlock := m.Lock("session-a")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4*iterations, counter)
}

func TestKeyedRWMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedRWMutex()

	// session-a の書き込みロックを保持したまま session-b がロックできること
	unlockA := m.Lock("session-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock("session-b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestKeyedRWMutex_ConcurrentReaders(t *testing.T) {
	m := NewKeyedRWMutex()

	u1 := m.RLock("session-a")
	u2 := m.RLock("session-a")
	u1()
	u2()

	// 読み取りロック解放後は書き込みロックを取得できる
	unlock := m.Lock("session-a")
	unlock()
	assert.NotNil(t, m.get("session-a"))
}
