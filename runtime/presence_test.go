package runtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mentorlink/contract"
)

func TestPresence_FirstChannelOnly(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	// Given no user is connected
	req.Empty(presence.Snapshot())

	// When the same user connects two channels
	first := presence.Connect("u1", "c1")
	second := presence.Connect("u1", "c2")

	// Then only the first connection reports an online transition
	req.True(first)
	req.False(second)
	req.Equal([]string{"u1"}, presence.Snapshot())
}

func TestPresence_ConnectIdempotentPerHandle(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	req.True(presence.Connect("u1", "c1"))
	// Same handle again must not re-register
	req.False(presence.Connect("u1", "c1"))

	_, last := presence.Disconnect("c1")
	req.True(last)
	req.Empty(presence.Snapshot())
}

func TestPresence_LastChannelWins(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	presence.Connect("u1", "c1")
	presence.Connect("u1", "c2")

	// When the first channel disconnects, the user stays online
	userID, last := presence.Disconnect("c1")
	req.Equal("u1", userID)
	req.False(last)
	req.Equal([]string{"u1"}, presence.Snapshot())

	// When the last channel disconnects, the user goes offline
	userID, last = presence.Disconnect("c2")
	req.Equal("u1", userID)
	req.True(last)
	req.Empty(presence.Snapshot())
}

func TestPresence_StaleDisconnectIsNoop(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	presence.Connect("u1", "c1")
	presence.Disconnect("c1")

	// A tab reconnects while the stale disconnect of the old handle
	// arrives late: the user must remain online
	presence.Connect("u1", "c2")
	userID, last := presence.Disconnect("c1")
	req.Empty(userID)
	req.False(last)
	req.Equal([]string{"u1"}, presence.Snapshot())
}

func TestPresence_SnapshotIsSorted(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	presence.Connect("zoe", "c1")
	presence.Connect("adam", "c2")
	presence.Connect("mia", "c3")

	req.Equal([]string{"adam", "mia", "zoe"}, presence.Snapshot())
}

func TestPresence_ConcurrentConnects(t *testing.T) {
	req := require.New(t)
	presence := NewPresence()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			presence.Connect("u1", contract.ChannelID(fmt.Sprintf("c%d", n)))
		}(i)
	}
	wg.Wait()

	// Fifty concurrent channels still collapse to one online user
	req.Equal([]string{"u1"}, presence.Snapshot())
}
