package conntable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertLookupSetNicknameByNickname(t *testing.T) {
	tb := New()
	now := time.Now()
	h := tb.Insert(42, "127.0.0.1:1111", now)

	c, ok := tb.Lookup(h)
	require.True(t, ok)
	assert.Equal(t, 42, c.Fd)
	assert.Empty(t, c.Nickname)

	require.True(t, tb.SetNickname(h, "alice", false))
	c, _ = tb.Lookup(h)
	assert.Equal(t, "alice", c.Nickname)

	found, ok := tb.ByNickname("alice")
	require.True(t, ok)
	assert.Equal(t, h, found.Handle)

	assert.Equal(t, 1, tb.Len())
}

func TestMarkAndSweepPendingRemoval(t *testing.T) {
	tb := New()
	h := tb.Insert(7, "127.0.0.1:2222", time.Now())
	tb.MarkForRemoval(h)

	var removed []Conn
	tb.SweepPending(func(c Conn) { removed = append(removed, c) })

	require.Len(t, removed, 1)
	assert.Equal(t, h, removed[0].Handle)

	_, ok := tb.Lookup(h)
	assert.False(t, ok)
	assert.Equal(t, 0, tb.Len())
}

func TestHeartbeatExpired(t *testing.T) {
	tb := New()
	old := time.Now().Add(-10 * time.Minute)
	h := tb.Insert(1, "x", old)

	expired := tb.HeartbeatExpired(time.Now(), 300*time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, h, expired[0].Handle)

	tb.Touch(h, time.Now())
	expired = tb.HeartbeatExpired(time.Now(), 300*time.Second)
	assert.Empty(t, expired)
}

func TestSnapshotReturnsAllConnections(t *testing.T) {
	tb := New()
	tb.Insert(1, "a", time.Now())
	tb.Insert(2, "b", time.Now())
	assert.Len(t, tb.Snapshot(), 2)
}
