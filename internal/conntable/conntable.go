// Package conntable tracks every live connection by a stable handle.
//
// Concurrency overview
// --------------------
//
// A single mutex protects inserts, removes, and lookups. A second, separate
// mutex guards the pending-removal list: command handlers running on worker
// goroutines mark a connection for teardown, and the event loop goroutine
// sweeps that list once per iteration and performs the actual deregister and
// close. This two-phase pattern keeps a handler from racing the event loop's
// reader on the same file descriptor.
package conntable

import (
	"sync"
	"time"
)

// Handle is an opaque, stable identifier for a connection. It is never an
// OS-level file descriptor outside this package.
type Handle uint64

// Conn is one tracked connection record.
type Conn struct {
	Handle       Handle
	Fd           int
	PeerAddr     string
	Nickname     string // empty until authenticated
	Admin        bool
	LastActivity time.Time
}

// Table owns every live Conn, keyed by Handle.
type Table struct {
	mu      sync.Mutex
	conns   map[Handle]*Conn
	nextH   uint64

	rmMu    sync.Mutex
	pending []Handle
}

// New returns an empty Table.
func New() *Table {
	return &Table{conns: make(map[Handle]*Conn)}
}

// Insert creates a Conn for fd/peerAddr and returns its Handle.
func (t *Table) Insert(fd int, peerAddr string, now time.Time) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextH++
	h := Handle(t.nextH)
	t.conns[h] = &Conn{
		Handle:       h,
		Fd:           fd,
		PeerAddr:     peerAddr,
		LastActivity: now,
	}
	return h
}

// Lookup returns a copy of the Conn for h, or (Conn{}, false) if it is not
// (or no longer) tracked. Changes to the copy are not seen by the table;
// mutate via the setter methods below so updates stay under the table lock.
func (t *Table) Lookup(h Handle) (Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[h]
	if !ok {
		return Conn{}, false
	}
	return *c, true
}

// SetNickname assigns nickname and admin to the connection at h. Returns
// false if h is no longer tracked.
func (t *Table) SetNickname(h Handle, nickname string, admin bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[h]
	if !ok {
		return false
	}
	c.Nickname = nickname
	c.Admin = admin
	return true
}

// Touch updates the last-activity timestamp for h.
func (t *Table) Touch(h Handle, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[h]; ok {
		c.LastActivity = now
	}
}

// ByNickname scans for a connection with the given raw nickname. The scan is
// linear by design — the spec calls for no secondary index.
func (t *Table) ByNickname(nickname string) (Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		if c.Nickname == nickname {
			return *c, true
		}
	}
	return Conn{}, false
}

// Snapshot returns a copy of every tracked connection record, for fan-out.
func (t *Table) Snapshot() []Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Conn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, *c)
	}
	return out
}

// MarkForRemoval appends h to the pending-removal list. Safe to call from
// any goroutine, including worker-pool tasks.
func (t *Table) MarkForRemoval(h Handle) {
	t.rmMu.Lock()
	defer t.rmMu.Unlock()
	t.pending = append(t.pending, h)
}

// SweepPending drains the pending-removal list, erasing each handle from the
// table and invoking onRemove(c) with the record so the caller can
// deregister the fd and close the socket. onRemove is called with neither
// mutex held.
func (t *Table) SweepPending(onRemove func(Conn)) {
	t.rmMu.Lock()
	pending := t.pending
	t.pending = nil
	t.rmMu.Unlock()

	for _, h := range pending {
		t.mu.Lock()
		c, ok := t.conns[h]
		var cv Conn
		if ok {
			cv = *c
			delete(t.conns, h)
		}
		t.mu.Unlock()
		if ok {
			onRemove(cv)
		}
	}
}

// HeartbeatExpired returns every connection whose LastActivity is older than
// threshold as of now.
func (t *Table) HeartbeatExpired(now time.Time, threshold time.Duration) []Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Conn
	for _, c := range t.conns {
		if now.Sub(c.LastActivity) >= threshold {
			out = append(out, *c)
		}
	}
	return out
}

// Len reports the number of live connections. Test/diagnostic helper.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
