package presence

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_AddConnection(t *testing.T) {
	tr := NewTracker()

	assert.True(t, tr.AddConnection("u1", "c1"), "expected first connection to flip user online")
	assert.False(t, tr.AddConnection("u1", "c2"), "expected second connection to not report online again")
	assert.True(t, tr.IsOnline("u1"))
	assert.ElementsMatch(t, []string{"c1", "c2"}, tr.ConnectionsOf("u1"))
}

func TestTracker_RemoveConnection(t *testing.T) {
	tr := NewTracker()
	now := time.Now()

	tr.AddConnection("u1", "c1")
	tr.AddConnection("u1", "c2")

	assert.False(t, tr.RemoveConnection("u1", "c1", now), "expected user to stay online with one connection left")
	assert.True(t, tr.IsOnline("u1"))

	assert.True(t, tr.RemoveConnection("u1", "c2", now), "expected last removal to flip user offline")
	assert.False(t, tr.IsOnline("u1"))

	ts, ok := tr.LastSeen("u1")
	assert.True(t, ok, "expected last-seen to be stamped")
	assert.Equal(t, now, ts)
}

func TestTracker_RemoveUnknownConnection(t *testing.T) {
	tr := NewTracker()

	assert.False(t, tr.RemoveConnection("u1", "c1", time.Now()), "expected removal for unknown user to be a no-op")

	tr.AddConnection("u1", "c1")
	assert.False(t, tr.RemoveConnection("u1", "never-added", time.Now()), "expected removal of unknown connection to be a no-op")
	assert.True(t, tr.IsOnline("u1"), "expected user to remain online")

	_, ok := tr.LastSeen("u1")
	assert.False(t, ok, "expected no last-seen stamp from a no-op removal")
}

func TestTracker_SingleOfflineEventAnyOrder(t *testing.T) {
	// removing n connections in any order must yield exactly one
	// becameOffline, on the last removal
	for i := 0; i < 10; i++ {
		tr := NewTracker()

		conns := []string{"c1", "c2", "c3", "c4"}
		for _, c := range conns {
			tr.AddConnection("u1", c)
		}

		rand.Shuffle(len(conns), func(i, j int) { conns[i], conns[j] = conns[j], conns[i] })

		var offlineEvents int
		for _, c := range conns {
			if tr.RemoveConnection("u1", c, time.Now()) {
				offlineEvents++
			}
		}

		assert.Equal(t, 1, offlineEvents, "expected exactly one offline event, order %v", conns)
	}
}

func TestTracker_OnlineCount(t *testing.T) {
	tr := NewTracker()
	tr.AddConnection("u1", "c1")
	tr.AddConnection("u2", "c2")
	assert.Equal(t, 2, tr.OnlineCount())

	tr.RemoveConnection("u1", "c1", time.Now())
	assert.Equal(t, 1, tr.OnlineCount())
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.AddConnection("u1", fmt.Sprintf("c%d", n))
		}(i)
	}
	wg.Wait()

	assert.Len(t, tr.ConnectionsOf("u1"), 50, "expected no lost updates under concurrent adds")
}
