// Package group implements persistent, password-protectable named group
// conversations: ownership, membership, bans, and transfer.
//
// All mutating operations take the manager's single mutex; no external lock
// is held while it is acquired, per the lock-ordering discipline (connection
// table first, then group manager, never reversed). Group and nickname keys
// are lowercased before every lookup; replies use the raw form where it
// improves readability for the person reading them.
package group

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"chatserver/internal/codec"
	"chatserver/internal/conntable"
	"chatserver/internal/passwordhash"
)

// Group is one named conversation.
type Group struct {
	NameLower    string
	Name         string // raw display form
	Owner        string // lowercased nickname
	Members      map[string]bool
	Banned       map[string]bool
	PasswordHash string // empty ≡ public
}

// Sender delivers a framed payload to the connection owning fd. Implemented
// by the composition root over the real socket; a missing/offline member is
// simply not found in the connection table and is skipped, never an error.
type Sender func(fd int, payload []byte) error

// Manager owns every Group.
type Manager struct {
	mu     sync.Mutex
	groups map[string]*Group

	conns *conntable.Table
	send  Sender
}

// New returns an empty Manager. conns is used to resolve member nicknames to
// live connections for fan-out; send delivers the bytes.
func New(conns *conntable.Table, send Sender) *Manager {
	return &Manager{
		groups: make(map[string]*Group),
		conns:  conns,
		send:   send,
	}
}

// Create handles /create <name> [password]. creator is the caller's raw
// nickname.
func (m *Manager) Create(creator, name, password string) string {
	if name == "" {
		return "错误：群名不能为空。"
	}
	lname := strings.ToLower(name)
	creatorLower := strings.ToLower(creator)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[lname]; exists {
		return fmt.Sprintf("错误：群组 '%s' 已经存在。", name)
	}

	g := &Group{
		NameLower: lname,
		Name:      name,
		Owner:     creatorLower,
		Members:   map[string]bool{creatorLower: true},
		Banned:    map[string]bool{},
	}
	if password != "" {
		hash, err := passwordhash.Hash(password)
		if err != nil {
			return "错误：密码设置失败，请重试。"
		}
		g.PasswordHash = hash
		m.groups[lname] = g
		return fmt.Sprintf("恭喜！群组 '%s' 创建成功，已设置密码，您已自动成为群主。", name)
	}

	m.groups[lname] = g
	return fmt.Sprintf("恭喜！群组 '%s' 创建成功，您已自动成为群主。", name)
}

// Join handles /join <name> [password].
func (m *Manager) Join(user, name, password string) string {
	lname := strings.ToLower(name)
	userLower := strings.ToLower(user)

	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.groups[lname]
	if !ok {
		return fmt.Sprintf("错误：群组 '%s' 不存在。", name)
	}
	if g.Banned[userLower] {
		return fmt.Sprintf("您已被群组 '%s' 禁止重新加入。", g.Name)
	}
	if g.Members[userLower] {
		return "您已在该群组中。"
	}
	if g.PasswordHash != "" {
		if password == "" {
			return fmt.Sprintf("错误：加入群组 '%s' 需要密码。", g.Name)
		}
		if !passwordhash.Verify(g.PasswordHash, password) {
			return "错误：密码不正确。"
		}
	}
	g.Members[userLower] = true
	return fmt.Sprintf("成功加入群组 '%s'。", g.Name)
}

// Send handles /send <name> <text…>. It formats "[NAME]USER: TEXT\n" and
// delivers it to every online member by resolving their nickname through
// the connection table. Offline members are silently skipped. Returns "" on
// success (already handled, no reply to the caller beyond the fan-out
// itself) or an error reply.
func (m *Manager) Send(user, name, text string) string {
	lname := strings.ToLower(name)
	userLower := strings.ToLower(user)

	m.mu.Lock()
	g, ok := m.groups[lname]
	if !ok {
		m.mu.Unlock()
		return "错误：该群不存在。"
	}
	if !g.Members[userLower] {
		m.mu.Unlock()
		return "错误：您不是该群的成员。"
	}
	members := make([]string, 0, len(g.Members))
	for nick := range g.Members {
		members = append(members, nick)
	}
	display := g.Name
	m.mu.Unlock()

	full := fmt.Sprintf("[%s]%s: %s\n", display, user, text)
	m.deliverToLowercasedMembers(members, full)
	return ""
}

// deliverToLowercasedMembers resolves each lowercased member nickname to a
// live connection by scanning the connection table (nicknames are raw, so
// this compares case-insensitively) and writes full to it.
func (m *Manager) deliverToLowercasedMembers(membersLower []string, full string) {
	payload := codec.Encode([]byte(full))
	for _, c := range m.conns.Snapshot() {
		if c.Nickname == "" {
			continue
		}
		for _, ml := range membersLower {
			if strings.ToLower(c.Nickname) == ml {
				_ = m.send(c.Fd, payload)
				break
			}
		}
	}
}

// List handles /listgroups.
func (m *Manager) List() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.groups) == 0 {
		return "目前没有群。"
	}
	names := make([]string, 0, len(m.groups))
	for _, g := range m.groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return "所有群: " + strings.Join(names, ", ")
}

// Leave handles /leave <name>.
func (m *Manager) Leave(user, name string) string {
	lname := strings.ToLower(name)
	userLower := strings.ToLower(user)

	m.mu.Lock()
	g, ok := m.groups[lname]
	if !ok {
		m.mu.Unlock()
		return fmt.Sprintf("错误：群组 '%s' 不存在。", name)
	}
	if !g.Members[userLower] {
		m.mu.Unlock()
		return "错误：您不是该群的成员。"
	}

	before := snapshotKeys(g.Members)

	if g.Owner != userLower {
		delete(g.Members, userLower)
		if len(g.Members) == 0 {
			delete(m.groups, lname)
			m.mu.Unlock()
			m.deliverToLowercasedMembers(before, fmt.Sprintf("%s left\n", user))
			return fmt.Sprintf("您已退出群组 '%s'。", name)
		}
		after := snapshotKeys(g.Members)
		display := g.Name
		m.mu.Unlock()
		m.deliverToLowercasedMembers(after, fmt.Sprintf("%s left\n", user))
		return fmt.Sprintf("您已退出群组 '%s'。", display)
	}

	// Owner leaving.
	if len(before) > 1 {
		var successor string
		for _, nick := range before {
			if nick != userLower {
				successor = nick
				break
			}
		}
		g.Owner = successor
		delete(g.Members, userLower)
		after := snapshotKeys(g.Members)
		display := g.Name
		m.mu.Unlock()
		broadcast := fmt.Sprintf("群主已转让给 [%s]", successor)
		m.deliverToLowercasedMembers(after, broadcast+"\n")
		return fmt.Sprintf("您已离开群组 '%s'，群主已转让给 [%s]。", display, successor)
	}

	delete(m.groups, lname)
	m.mu.Unlock()
	m.deliverToLowercasedMembers(before, "group dissolved\n")
	return fmt.Sprintf("群组 '%s' 已解散。", name)
}

// GroupKick handles /groupkick <name> <nick>.
func (m *Manager) GroupKick(caller, name, victim string) string {
	lname := strings.ToLower(name)
	callerLower := strings.ToLower(caller)
	victimLower := strings.ToLower(victim)

	m.mu.Lock()
	g, ok := m.groups[lname]
	if !ok {
		m.mu.Unlock()
		return fmt.Sprintf("错误：群组 '%s' 不存在。", name)
	}
	if g.Owner != callerLower {
		m.mu.Unlock()
		return "错误：需要群主权限。"
	}
	if callerLower == victimLower {
		m.mu.Unlock()
		return "错误：不能踢出自己。"
	}
	if !g.Members[victimLower] {
		m.mu.Unlock()
		return fmt.Sprintf("错误：用户 '%s' 不是该群成员。", victim)
	}

	before := snapshotKeys(g.Members)
	delete(g.Members, victimLower)
	g.Banned[victimLower] = true
	dissolved := len(g.Members) == 0
	if dissolved {
		delete(m.groups, lname)
	}
	m.mu.Unlock()

	m.deliverToLowercasedMembers(before, fmt.Sprintf("%s kicked by %s\n", victim, caller))
	return fmt.Sprintf("已将 '%s' 踢出群组 '%s'。", victim, name)
}

// GroupUnban handles /groupunban <name> <nick>.
func (m *Manager) GroupUnban(caller, name, target string) string {
	lname := strings.ToLower(name)
	callerLower := strings.ToLower(caller)
	targetLower := strings.ToLower(target)

	m.mu.Lock()
	g, ok := m.groups[lname]
	if !ok {
		m.mu.Unlock()
		return fmt.Sprintf("错误：群组 '%s' 不存在。", name)
	}
	if g.Owner != callerLower {
		m.mu.Unlock()
		return "错误：需要群主权限。"
	}
	wasBanned := g.Banned[targetLower]
	delete(g.Banned, targetLower)
	members := snapshotKeys(g.Members)
	m.mu.Unlock()

	if !wasBanned {
		return "该用户未被禁止。"
	}
	m.deliverToLowercasedMembers(members, fmt.Sprintf("%s unbanned\n", target))
	return fmt.Sprintf("已解除 '%s' 在群组 '%s' 的封禁。", target, name)
}

// Transfer handles /transfer <name> <nick>.
func (m *Manager) Transfer(caller, name, target string) string {
	lname := strings.ToLower(name)
	callerLower := strings.ToLower(caller)
	targetLower := strings.ToLower(target)

	m.mu.Lock()
	g, ok := m.groups[lname]
	if !ok {
		m.mu.Unlock()
		return fmt.Sprintf("错误：群组 '%s' 不存在。", name)
	}
	if g.Owner != callerLower {
		m.mu.Unlock()
		return "错误：需要群主权限。"
	}
	if callerLower == targetLower {
		m.mu.Unlock()
		return "错误：不能将群组转让给自己。"
	}
	if !g.Members[targetLower] {
		m.mu.Unlock()
		return fmt.Sprintf("错误：用户 '%s' 不是该群成员。", target)
	}
	g.Owner = targetLower
	members := snapshotKeys(g.Members)
	m.mu.Unlock()

	m.deliverToLowercasedMembers(members, fmt.Sprintf("ownership transferred %s→%s\n", caller, target))
	return fmt.Sprintf("群组 '%s' 的所有权已转让给 '%s'。", name, target)
}

func snapshotKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
