package chatapp

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"chatserver/internal/conntable"
)

// cmdHandler is one entry in the public or admin-only command table. self is
// the caller's connection snapshot taken before the handler runs; rest is
// everything after the command token, whitespace-trimmed.
type cmdHandler func(a *App, h conntable.Handle, self conntable.Conn, rest string) string

var publicCommands = map[string]cmdHandler{
	"/list":        cmdList,
	"/whoami":      cmdWhoami,
	"/w":           cmdWhisper,
	"/help":        cmdHelp,
	"/quit":        cmdQuit,
	"/create":      cmdCreate,
	"/join":        cmdJoin,
	"/send":        cmdSend,
	"/listgroups":  cmdListGroups,
	"/leave":       cmdLeave,
	"/groupkick":   cmdGroupKick,
	"/groupunban":  cmdGroupUnban,
	"/transfer":    cmdTransfer,
}

var adminCommands = map[string]cmdHandler{
	"/kick": cmdAdminKick,
}

const helpText = `可用命令：
/list             列出所有在线用户
/whoami           查看自己的昵称
/w <昵称> <消息>   向指定用户发送私聊
/help             显示本帮助
/quit             断开连接
/create <群名> [密码]   创建群组
/join <群名> [密码]     加入群组
/send <群名> <消息>     向群组发送消息
/listgroups       列出所有群组
/leave <群名>     离开群组
/groupkick <群名> <昵称>   将成员踢出群组（群主）
/groupunban <群名> <昵称>  解除群组封禁（群主）
/transfer <群名> <昵称>    转让群组所有权（群主）`

const adminHelpText = `
管理员命令：
/kick <昵称>      将用户踢出服务器`

// tokenizeCommand splits payload into its leading command token and the
// remainder of the line, and collapses a doubled leading slash so a client
// can escape the command line with "//".
func tokenizeCommand(payload string) (cmd string, rest string) {
	idx := strings.IndexFunc(payload, unicode.IsSpace)
	if idx < 0 {
		cmd, rest = payload, ""
	} else {
		cmd, rest = payload[:idx], strings.TrimSpace(payload[idx+1:])
	}
	if strings.HasPrefix(cmd, "//") {
		cmd = cmd[1:]
	}
	return cmd, rest
}

func (a *App) dispatch(h conntable.Handle, self conntable.Conn, payload string) string {
	cmd, rest := tokenizeCommand(payload)
	cmdLower := strings.ToLower(cmd)

	if fn, ok := publicCommands[cmdLower]; ok {
		return fn(a, h, self, rest)
	}

	if fn, ok := adminCommands[cmdLower]; ok {
		if !self.Admin {
			return "错误：需要管理员权限。"
		}
		return fn(a, h, self, rest)
	}

	if handled, reply := a.bridge.Handle(self.Nickname, self.Admin, cmdLower, strings.Fields(rest)); handled {
		return reply
	}

	return "错误：未知命令。"
}

func cmdList(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	var lines []string
	for _, c := range a.conns.Snapshot() {
		if c.Nickname == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d\t%s", c.Handle, c.Nickname))
	}
	sort.Strings(lines)
	if len(lines) == 0 {
		return "当前没有在线用户。"
	}
	return strings.Join(lines, "\n")
}

func cmdWhoami(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	return fmt.Sprintf("your nickname is %s", self.Nickname)
}

func cmdWhisper(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	idx := strings.IndexFunc(rest, unicode.IsSpace)
	if idx < 0 {
		return "错误：用法 /w <昵称> <消息>。"
	}
	nick := rest[:idx]
	msg := strings.TrimSpace(rest[idx+1:])
	if msg == "" {
		return "错误：用法 /w <昵称> <消息>。"
	}
	if strings.EqualFold(nick, self.Nickname) {
		return "错误：不能私聊自己。"
	}
	target, ok := a.conns.ByNickname(nick)
	if !ok {
		return "错误：该用户不在线。"
	}
	a.sendTo(target, fmt.Sprintf("来自 %s 的私聊：%s", self.Nickname, msg))
	return fmt.Sprintf("已向 %s 发送私聊消息。", nick)
}

func cmdHelp(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	if self.Admin {
		return helpText + adminHelpText
	}
	return helpText
}

func cmdQuit(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	a.conns.MarkForRemoval(h)
	return "再见，下次再聊。"
}

func cmdCreate(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.Fields(rest)
	if len(parts) < 1 {
		return "错误：用法 /create <群名> [密码]。"
	}
	password := ""
	if len(parts) > 1 {
		password = parts[1]
	}
	return a.groups.Create(self.Nickname, parts[0], password)
}

func cmdJoin(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.Fields(rest)
	if len(parts) < 1 {
		return "错误：用法 /join <群名> [密码]。"
	}
	password := ""
	if len(parts) > 1 {
		password = parts[1]
	}
	return a.groups.Join(self.Nickname, parts[0], password)
}

func cmdSend(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "错误：用法 /send <群名> <消息>。"
	}
	return a.groups.Send(self.Nickname, parts[0], parts[1])
}

func cmdListGroups(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	return a.groups.List()
}

func cmdLeave(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	name := strings.TrimSpace(rest)
	if name == "" {
		return "错误：用法 /leave <群名>。"
	}
	return a.groups.Leave(self.Nickname, name)
}

func cmdGroupKick(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "错误：用法 /groupkick <群名> <昵称>。"
	}
	return a.groups.GroupKick(self.Nickname, parts[0], parts[1])
}

func cmdGroupUnban(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "错误：用法 /groupunban <群名> <昵称>。"
	}
	return a.groups.GroupUnban(self.Nickname, parts[0], parts[1])
}

func cmdTransfer(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	parts := strings.Fields(rest)
	if len(parts) < 2 {
		return "错误：用法 /transfer <群名> <昵称>。"
	}
	return a.groups.Transfer(self.Nickname, parts[0], parts[1])
}

func cmdAdminKick(a *App, h conntable.Handle, self conntable.Conn, rest string) string {
	nick := strings.TrimSpace(rest)
	if nick == "" {
		return "错误：用法 /kick <昵称>。"
	}
	target, ok := a.conns.ByNickname(nick)
	if !ok {
		return "错误：该用户不在线。"
	}
	a.broadcastToAll(fmt.Sprintf("%s kicked %s", self.Nickname, nick))
	a.sendTo(target, "kicked")
	a.conns.MarkForRemoval(target.Handle)
	return ""
}
