package slot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct{ n int }

func TestSlot_EmptyUntilStored(t *testing.T) {
	var s Slot[payload]
	assert.Nil(t, s.Load())
	assert.Equal(t, uint64(0), s.Seq())
}

func TestSlot_LatestWins(t *testing.T) {
	var s Slot[payload]
	s.Store(&payload{1})
	s.Store(&payload{2})
	s.Store(&payload{3})

	got := s.Load()
	require.NotNil(t, got)
	assert.Equal(t, 3, got.n)
	assert.Equal(t, uint64(3), s.Seq())
}

func TestSlot_ClearResetsToNone(t *testing.T) {
	var s Slot[payload]
	s.Store(&payload{1})
	before := s.Seq()
	s.Clear()
	assert.Nil(t, s.Load())
	assert.Greater(t, s.Seq(), before)
}

func TestSlot_ConcurrentReadersNeverSeeTornValues(t *testing.T) {
	var s Slot[payload]
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10000; i++ {
			s.Store(&payload{i})
		}
		close(done)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				select {
				case <-done:
					return
				default:
				}
				if v, _ := s.Snapshot(); v != nil {
					// intra-producer ordering is preserved
					assert.GreaterOrEqual(t, v.n, last)
					last = v.n
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10000, s.Load().n)
}
