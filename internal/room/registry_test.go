package room

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	open    bool
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{open: true}
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestGetOrCreate(t *testing.T) {
	g := NewRegistry(zap.NewNop())

	r1 := g.GetOrCreate("AAAA-BBBB-CCCC-DDDD")
	r2 := g.GetOrCreate("AAAA-BBBB-CCCC-DDDD")
	assert.Same(t, r1, r2)

	r3 := g.GetOrCreate("AAAA-BBBB-CCCC-EEEE")
	assert.NotSame(t, r1, r3)
}

func TestRemoveIfEmpty(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	code := "AAAA-BBBB-CCCC-DDDD"

	r := g.GetOrCreate(code)
	_, err := r.Add("c1", newFakeConn(), "alice")
	require.NoError(t, err)

	g.RemoveIfEmpty(code)
	_, ok := g.Get(code)
	assert.True(t, ok, "non-empty room must survive RemoveIfEmpty")

	r.Remove("c1")
	g.RemoveIfEmpty(code)
	_, ok = g.Get(code)
	assert.False(t, ok, "empty room must be removed")
}

func TestUsernameUniqueness(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	r := g.GetOrCreate("AAAA-BBBB-CCCC-DDDD")

	_, err := r.Add("c1", newFakeConn(), "bob")
	require.NoError(t, err)

	_, err = r.Add("c2", newFakeConn(), "bob")
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, 1, r.Size(), "rejected join must not mutate the room")

	// The same client rejoining under its own name does not block itself.
	_, err = r.Add("c1", newFakeConn(), "bob")
	assert.NoError(t, err)
	assert.Equal(t, 1, r.Size())

	_, err = r.Add("c2", newFakeConn(), "Bob")
	assert.NoError(t, err, "uniqueness is case-sensitive")
}

func TestRoomCapacity(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	r := g.GetOrCreate("AAAA-BBBB-CCCC-DDDD")

	for i := 0; i < MaxMembers; i++ {
		_, err := r.Add(fmt.Sprintf("c%d", i), newFakeConn(), fmt.Sprintf("user%d", i))
		require.NoError(t, err)
	}
	require.Equal(t, MaxMembers, r.Size())

	_, err := r.Add("c10", newFakeConn(), "user10")
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, MaxMembers, r.Size())

	// An existing member is not blocked by the capacity check.
	_, err = r.Add("c0", newFakeConn(), "user0")
	assert.NoError(t, err)
	assert.Equal(t, MaxMembers, r.Size())
}

func TestBroadcastExcludesSender(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	code := "AAAA-BBBB-CCCC-DDDD"
	r := g.GetOrCreate(code)

	sender := newFakeConn()
	recv1 := newFakeConn()
	recv2 := newFakeConn()
	r.Add("sender", sender, "alice")
	r.Add("recv1", recv1, "bob")
	r.Add("recv2", recv2, "carol")

	other := g.GetOrCreate("AAAA-BBBB-CCCC-EEEE")
	outsider := newFakeConn()
	other.Add("outsider", outsider, "dave")

	g.Broadcast(code, "sender", []byte("hi"))

	assert.Equal(t, 0, sender.sentCount())
	assert.Equal(t, 1, recv1.sentCount())
	assert.Equal(t, 1, recv2.sentCount())
	assert.Equal(t, 0, outsider.sentCount(), "no cross-room delivery")
}

func TestBroadcastSkipsClosedAndSurvivesErrors(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	code := "AAAA-BBBB-CCCC-DDDD"
	r := g.GetOrCreate(code)

	closed := newFakeConn()
	closed.open = false
	failing := newFakeConn()
	failing.sendErr = errors.New("send failed")
	healthy := newFakeConn()

	r.Add("closed", closed, "alice")
	r.Add("failing", failing, "bob")
	r.Add("healthy", healthy, "carol")

	g.Broadcast(code, "", []byte("hi"))

	assert.Equal(t, 0, closed.sentCount())
	assert.Equal(t, 1, healthy.sentCount(), "one failed send must not abort the rest")
}

func TestBroadcastMissingRoom(t *testing.T) {
	g := NewRegistry(zap.NewNop())
	// Must be a no-op, not a panic.
	g.Broadcast("AAAA-BBBB-CCCC-DDDD", "", []byte("hi"))
}

func TestStats(t *testing.T) {
	g := NewRegistry(zap.NewNop())

	rooms, clients := g.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)

	r1 := g.GetOrCreate("AAAA-BBBB-CCCC-DDDD")
	r1.Add("c1", newFakeConn(), "alice")
	r1.Add("c2", newFakeConn(), "bob")
	r2 := g.GetOrCreate("AAAA-BBBB-CCCC-EEEE")
	r2.Add("c3", newFakeConn(), "carol")

	rooms, clients = g.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, clients)

	active := g.ActiveRooms()
	assert.Equal(t, map[string]int{
		"AAAA-BBBB-CCCC-DDDD": 2,
		"AAAA-BBBB-CCCC-EEEE": 1,
	}, active)
}

// Random join/leave sequences must preserve the registry invariants: member
// counts stay within 0..MaxMembers, a room is present iff non-empty, and
// usernames within a room are pairwise distinct.
func TestRegistryInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := NewRegistry(zap.NewNop())
		codes := []string{"AAAA-0000-AAAA-0000", "BBBB-1111-BBBB-1111"}
		joined := make(map[string]string) // clientID -> code

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clientID := fmt.Sprintf("c%d", rapid.IntRange(0, 14).Draw(t, "client"))
			code := codes[rapid.IntRange(0, 1).Draw(t, "room")]

			if rapid.Bool().Draw(t, "join") {
				if prev, ok := joined[clientID]; ok {
					r, _ := g.Get(prev)
					r.Remove(clientID)
					g.RemoveIfEmpty(prev)
					delete(joined, clientID)
				}
				r := g.GetOrCreate(code)
				if _, err := r.Add(clientID, newFakeConn(), "user-"+clientID); err == nil {
					joined[clientID] = code
				} else {
					g.RemoveIfEmpty(code)
				}
			} else if prev, ok := joined[clientID]; ok {
				r, _ := g.Get(prev)
				r.Remove(clientID)
				g.RemoveIfEmpty(prev)
				delete(joined, clientID)
			}

			for _, c := range codes {
				r, ok := g.Get(c)
				if !ok {
					continue
				}
				size := r.Size()
				if size == 0 {
					t.Fatalf("room %s present in registry with zero members", c)
				}
				if size > MaxMembers {
					t.Fatalf("room %s exceeded capacity: %d", c, size)
				}
				names := r.Usernames()
				seen := make(map[string]bool, len(names))
				for _, n := range names {
					if seen[n] {
						t.Fatalf("duplicate username %q in room %s", n, c)
					}
					seen[n] = true
				}
			}
		}
	})
}
