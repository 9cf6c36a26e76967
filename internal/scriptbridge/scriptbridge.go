// Package scriptbridge is a dynamic command table that operators can extend
// at runtime, mirroring the role the original Lua VM's lua_cmd_<name>
// dispatch played: the command dispatcher asks the bridge to handle any
// token it doesn't recognize itself, and the bridge looks it up in a table
// built by Register calls, made at startup or at any later time.
//
// The bridge holds its own mutex. Per the concurrency model, handlers must
// not be invoked while the caller holds the connection-table lock — Handle
// only ever runs from worker-pool goroutines that have already released it.
package scriptbridge

import "sync"

// HandlerFunc is a dynamically registered command handler. It receives the
// caller's raw nickname, whether the caller is an admin, and the argument
// tokens after the command name, and returns the reply to send back (empty
// means already handled, no reply).
type HandlerFunc func(nickname string, admin bool, args []string) string

// Bridge is the script command registry.
type Bridge struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// New returns an empty Bridge.
func New() *Bridge {
	return &Bridge{handlers: make(map[string]HandlerFunc)}
}

// Register installs fn under the given command token (including its
// leading slash). A later Register for the same token replaces the
// earlier one.
func (b *Bridge) Register(token string, fn HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[token] = fn
}

// Handle looks up cmd and, if found, invokes it. handled is false when no
// script command is registered under cmd, in which case reply is always
// empty and the dispatcher should fall through to "unknown command".
func (b *Bridge) Handle(nickname string, admin bool, cmd string, args []string) (handled bool, reply string) {
	b.mu.Lock()
	fn, ok := b.handlers[cmd]
	b.mu.Unlock()
	if !ok {
		return false, ""
	}
	return true, fn(nickname, admin, args)
}
