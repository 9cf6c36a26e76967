package chatapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatserver/internal/conntable"
	"chatserver/internal/passwordhash"
	"chatserver/internal/userstore"
)

const authUsage = "请先使用 /register <用户名> <密码> 注册，或 /login <用户名> <密码> 登录。"

// handleAuth processes a message on a connection with no nickname yet. Only
// /register and /login are recognized; everything else gets the usage
// reply. h identifies the connection so a successful /login can assign its
// nickname and broadcast the join.
func (a *App) handleAuth(h conntable.Handle, trimmed string) string {
	tokens := strings.Fields(trimmed)
	if len(tokens) < 3 {
		return authUsage
	}

	cmd := strings.ToLower(tokens[0])
	username, password := tokens[1], tokens[2]

	switch cmd {
	case "/register":
		return a.doRegister(username, password)
	case "/login":
		return a.doLogin(h, username, password)
	default:
		return authUsage
	}
}

func (a *App) doRegister(username, password string) string {
	ctx := context.Background()

	if _, err := a.store.Lookup(ctx, username); err == nil {
		return "错误：用户名已被注册。"
	} else if !errors.Is(err, userstore.ErrNotFound) {
		a.log.Errorf("register lookup %s: %v", username, err)
		return "错误：数据库错误，请稍后再试。"
	}

	hash, err := passwordhash.Hash(password)
	if err != nil {
		a.log.Errorf("hash password for %s: %v", username, err)
		return "错误：注册失败，请重试。"
	}

	if err := a.store.Register(ctx, username, hash); err != nil {
		if errors.Is(err, userstore.ErrUsernameTaken) {
			return "错误：用户名已被注册。"
		}
		a.log.Errorf("register %s: %v", username, err)
		return "错误：数据库错误，请稍后再试。"
	}

	return "注册成功! 请使用 /login 登录。"
}

// doLogin verifies credentials and, on success, assigns the connection's
// nickname and admin flag and broadcasts the join. The same reply is used
// for "no such user" and "wrong password" so a client cannot distinguish
// them.
func (a *App) doLogin(h conntable.Handle, username, password string) string {
	const badCredentials = "错误：用户名或密码不正确。"

	ctx := context.Background()
	user, err := a.store.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return badCredentials
		}
		a.log.Errorf("login lookup %s: %v", username, err)
		return "错误：数据库错误，请稍后再试。"
	}

	if !passwordhash.Verify(user.PasswordHash, password) {
		return badCredentials
	}

	if _, already := a.conns.ByNickname(user.Username); already {
		return "错误：该用户已登录。"
	}

	a.conns.SetNickname(h, user.Username, user.IsAdmin)
	a.broadcastToOthers(h, fmt.Sprintf("%s 加入聊天室", user.Username))
	return fmt.Sprintf("登录成功! 欢迎回来, %s！", user.Username)
}
