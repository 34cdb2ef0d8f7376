package chat

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomLocksSerializeAndCleanUp(t *testing.T) {
	locks := newRoomLocks()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock(7)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
	require.Zero(t, locks.size())
}

func TestRoomLocksIndependentRooms(t *testing.T) {
	locks := newRoomLocks()
	unlockA := locks.lock(1)
	unlockB := locks.lock(2)
	require.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	require.Zero(t, locks.size())
}
