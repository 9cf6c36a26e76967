// Package chatapp is the composition root for the core: it wires the
// connection table, credential store, group manager, script bridge, and
// logger together behind a single App, and implements the auth state
// machine (auth.go) and command dispatcher (dispatch.go) the event loop
// calls into for every decoded message.
//
// There are no package-level globals here. The caller (cmd/server) builds
// every collaborator once and passes them to New.
package chatapp

import (
	"fmt"
	"strings"

	"chatserver/internal/chatlog"
	"chatserver/internal/codec"
	"chatserver/internal/conntable"
	"chatserver/internal/group"
	"chatserver/internal/scriptbridge"
	"chatserver/internal/userstore"
)

// Sender delivers a framed payload to the connection at fd.
type Sender func(fd int, payload []byte) error

// App holds every collaborator the core needs to process one message.
type App struct {
	conns  *conntable.Table
	store  *userstore.Store
	groups *group.Manager
	bridge *scriptbridge.Bridge
	log    *chatlog.Logger
	send   Sender
}

// New returns an App ready to process messages.
func New(conns *conntable.Table, store *userstore.Store, groups *group.Manager, bridge *scriptbridge.Bridge, log *chatlog.Logger, send Sender) *App {
	return &App{
		conns:  conns,
		store:  store,
		groups: groups,
		bridge: bridge,
		log:    log,
		send:   send,
	}
}

// HandleMessage is the Handler the event loop submits to the worker pool for
// every complete decoded frame. It gates pre-auth traffic into the auth
// state machine, routes slash commands to the dispatcher, and broadcasts
// everything else as plain chat.
func (a *App) HandleMessage(h conntable.Handle, payload []byte) {
	self, ok := a.conns.Lookup(h)
	if !ok {
		return
	}

	trimmed := strings.TrimSpace(string(payload))

	var reply string
	switch {
	case self.Nickname == "":
		reply = a.handleAuth(h, trimmed)
	case trimmed == "":
		return
	case strings.HasPrefix(trimmed, "/"):
		reply = a.dispatch(h, self, trimmed)
	default:
		a.broadcastToOthers(h, fmt.Sprintf("%s: %s", self.Nickname, trimmed))
		return
	}

	if reply != "" {
		a.sendTo(self, reply)
	}
}

// OnDisconnect is invoked by the event loop once a connection has been fully
// torn down (deregistered, erased, socket closed). It announces the
// departure of an authenticated user; connections that never logged in
// leave silently.
func (a *App) OnDisconnect(c conntable.Conn) {
	if c.Nickname == "" {
		return
	}
	a.broadcastToOthers(c.Handle, fmt.Sprintf("%s 退出聊天室", c.Nickname))
}

func (a *App) sendTo(c conntable.Conn, text string) {
	if err := a.send(c.Fd, codec.Encode([]byte(text))); err != nil {
		a.log.Warningf("send to %s (fd %d) failed: %v", c.Nickname, c.Fd, err)
	}
}

// broadcastToOthers delivers text to every nicknamed connection other than
// exclude.
func (a *App) broadcastToOthers(exclude conntable.Handle, text string) {
	for _, c := range a.conns.Snapshot() {
		if c.Handle == exclude || c.Nickname == "" {
			continue
		}
		a.sendTo(c, text)
	}
}

// broadcastToAll delivers text to every nicknamed connection, including the
// caller.
func (a *App) broadcastToAll(text string) {
	for _, c := range a.conns.Snapshot() {
		if c.Nickname == "" {
			continue
		}
		a.sendTo(c, text)
	}
}
