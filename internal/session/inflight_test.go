package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInFlightSet_FirstCallerWins(t *testing.T) {
	var s inFlightSet
	require.True(t, s.add("sid-1"))
	require.False(t, s.add("sid-1"))
	require.True(t, s.add("sid-2"))
}

func TestInFlightSet_ConcurrentAddsYieldOneWinner(t *testing.T) {
	var s inFlightSet
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.add("sid") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestInFlightSet_EvictsStaleEntries(t *testing.T) {
	s := inFlightSet{ttl: 10 * time.Millisecond}
	require.True(t, s.add("sid"))
	require.False(t, s.add("sid"))

	time.Sleep(25 * time.Millisecond)
	require.True(t, s.add("sid"))

	// the stale entry was removed, not accumulated
	n := 0
	s.m.Range(func(k, v interface{}) bool { n++; return true })
	require.Equal(t, 1, n)
}
