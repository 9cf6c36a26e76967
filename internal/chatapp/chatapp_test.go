package chatapp

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/chatlog"
	"chatserver/internal/conntable"
	"chatserver/internal/group"
	"chatserver/internal/scriptbridge"
	"chatserver/internal/userstore"
)

type fakeLink struct {
	mu  sync.Mutex
	out map[int][]string
}

func newFakeLink() *fakeLink { return &fakeLink{out: map[int][]string{}} }

func (f *fakeLink) send(fd int, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out[fd] = append(f.out[fd], string(payload[4:]))
	return nil
}

func (f *fakeLink) last(fd int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.out[fd]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fakeLink) all(fd int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.out[fd]...)
}

type harness struct {
	app   *App
	conns *conntable.Table
	link  *fakeLink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := userstore.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	conns := conntable.New()
	link := newFakeLink()
	groups := group.New(conns, func(fd int, payload []byte) error {
		return link.send(fd, payload)
	})
	bridge := scriptbridge.New()

	logger, err := chatlog.New("")
	require.NoError(t, err)

	app := New(conns, store, groups, bridge, logger, link.send)
	return &harness{app: app, conns: conns, link: link}
}

// login connects a new socket (fd) and performs /register then /login,
// returning the assigned connection handle.
func (hn *harness) login(t *testing.T, fd int, nickname, password string) conntable.Handle {
	t.Helper()
	h := hn.conns.Insert(fd, "test-peer", time.Now())
	hn.app.HandleMessage(h, []byte("/register "+nickname+" "+password))
	hn.app.HandleMessage(h, []byte("/login "+nickname+" "+password))
	return h
}

func TestRegisterThenLoginBroadcastsJoin(t *testing.T) {
	hn := newHarness(t)

	aliceH := hn.conns.Insert(1, "peer1", time.Now())
	hn.app.HandleMessage(aliceH, []byte("/register alice pw1"))
	assert.Equal(t, "注册成功! 请使用 /login 登录。", hn.link.last(1))

	bobH := hn.conns.Insert(2, "peer2", time.Now())

	hn.app.HandleMessage(aliceH, []byte("/login alice pw1"))
	assert.Contains(t, hn.link.last(1), "登录成功! 欢迎回来, alice")

	hn.app.HandleMessage(bobH, []byte("/register bob pw2"))
	hn.app.HandleMessage(bobH, []byte("/login bob pw2"))

	assert.Contains(t, hn.link.all(1), "bob 加入聊天室")
}

func TestLoginRejectsWrongPasswordAndDuplicateLogin(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")
	assert.NotEmpty(t, aliceH)

	otherH := hn.conns.Insert(2, "peer2", time.Now())
	hn.app.HandleMessage(otherH, []byte("/login alice wrong"))
	assert.Equal(t, "错误：用户名或密码不正确。", hn.link.last(2))

	hn.app.HandleMessage(otherH, []byte("/login alice pw1"))
	assert.Equal(t, "错误：该用户已登录。", hn.link.last(2))
}

func TestWhisperDeliversToTargetAndConfirmsSender(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")
	hn.login(t, 2, "bob", "pw2")

	hn.app.HandleMessage(aliceH, []byte("/w bob hello world"))
	assert.Equal(t, "来自 alice 的私聊：hello world", hn.link.last(2))
	assert.Equal(t, "已向 bob 发送私聊消息。", hn.link.last(1))
}

func TestWhisperRejectsSelfAndOffline(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")

	hn.app.HandleMessage(aliceH, []byte("/w alice hi"))
	assert.Equal(t, "错误：不能私聊自己。", hn.link.last(1))

	hn.app.HandleMessage(aliceH, []byte("/w ghost hi"))
	assert.Equal(t, "错误：该用户不在线。", hn.link.last(1))
}

func TestGroupCreateJoinViaDispatch(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")
	hn.login(t, 2, "bob", "pw2")

	hn.app.HandleMessage(aliceH, []byte("/create club s3cret"))
	assert.Contains(t, hn.link.last(1), "创建成功")

	bobH, _ := hn.conns.ByNickname("bob")
	hn.app.HandleMessage(bobH.Handle, []byte("/join club"))
	assert.Contains(t, hn.link.last(2), "需要密码")

	hn.app.HandleMessage(bobH.Handle, []byte("/join club s3cret"))
	assert.Contains(t, hn.link.last(2), "成功加入")
}

func TestAdminKickRequiresAdminFlag(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")
	hn.login(t, 2, "bob", "pw2")

	hn.app.HandleMessage(aliceH, []byte("/kick bob"))
	assert.Equal(t, "错误：需要管理员权限。", hn.link.last(1))
}

func TestDoubledSlashCollapsesToSameCommand(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")

	hn.app.HandleMessage(aliceH, []byte("//whoami"))
	assert.Equal(t, "your nickname is alice", hn.link.last(1))
}

func TestPlainMessageBroadcastsToOthers(t *testing.T) {
	hn := newHarness(t)
	aliceH := hn.login(t, 1, "alice", "pw1")
	hn.login(t, 2, "bob", "pw2")

	hn.app.HandleMessage(aliceH, []byte("hello everyone"))
	assert.Equal(t, "alice: hello everyone", hn.link.last(2))
}

func TestDisconnectBroadcastsDepartureOnlyForAuthenticated(t *testing.T) {
	hn := newHarness(t)
	hn.login(t, 1, "alice", "pw1")
	hn.login(t, 2, "bob", "pw2")

	aliceConn, ok := hn.conns.ByNickname("alice")
	require.True(t, ok)

	hn.app.OnDisconnect(aliceConn)
	assert.Equal(t, "alice 退出聊天室", hn.link.last(2))

	anon, ok2 := hn.conns.Lookup(hn.conns.Insert(3, "peer3", time.Now()))
	require.True(t, ok2)
	hn.app.OnDisconnect(anon)
	assert.Equal(t, "alice 退出聊天室", hn.link.last(2))
}
