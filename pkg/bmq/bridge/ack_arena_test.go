package bridge

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckArena_TakeOnce(t *testing.T) {
	t.Parallel()

	arena := newAckArena()

	h1 := arena.insert(testQueue, uuid.New(), nil)
	h2 := arena.insert(testQueue, uuid.New(), nil)
	assert.NotEqual(t, h1, h2)
	assert.NotZero(t, h1)

	entry, ok := arena.take(h1)
	require.True(t, ok)
	assert.Equal(t, h1, entry.handle)

	_, ok = arena.take(h1)
	assert.False(t, ok)

	assert.Equal(t, ArenaStats{Created: 2, Reclaimed: 1, Live: 1}, arena.stats())
}

func TestAckArena_DrainInPostOrder(t *testing.T) {
	t.Parallel()

	arena := newAckArena()

	var handles []uint64
	for range 20 {
		handles = append(handles, arena.insert(testQueue, uuid.New(), nil))
	}

	arena.take(handles[3])

	drained := arena.drain()
	require.Len(t, drained, 19)

	for i := 1; i < len(drained); i++ {
		assert.Less(t, drained[i-1].handle, drained[i].handle)
	}

	assert.Empty(t, arena.drain())
	assert.Equal(t, ArenaStats{Created: 20, Reclaimed: 20}, arena.stats())
}

func TestAckArena_ConcurrentTakeAndDrain(t *testing.T) {
	t.Parallel()

	arena := newAckArena()

	var handles []uint64
	for range 500 {
		handles = append(handles, arena.insert(testQueue, uuid.New(), nil))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[uint64]int)
	)

	for _, h := range handles {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, ok := arena.take(h); ok {
				mu.Lock()
				claimed[h]++
				mu.Unlock()
			}
		}()
	}

	drained := arena.drain()
	wg.Wait()

	for _, entry := range drained {
		claimed[entry.handle]++
	}

	assert.Len(t, claimed, 500)
	for h, n := range claimed {
		assert.Equal(t, 1, n, "handle %d", h)
	}

	stats := arena.stats()
	assert.Equal(t, stats.Created, stats.Reclaimed)
}

func TestCallbackGate(t *testing.T) {
	t.Parallel()

	gate := newCallbackGate()
	require.True(t, gate.enter())

	closed := make(chan struct{})

	go func() {
		gate.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while a callback was in flight")
	default:
	}

	gate.leave()
	<-closed

	assert.True(t, gate.isClosed())
	assert.False(t, gate.enter())
}
