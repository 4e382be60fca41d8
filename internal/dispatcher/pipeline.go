package dispatcher

import (
	"strings"

	"github.com/loppo-llc/tgbotctl/internal/transport"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

var adminCommands = map[string]bool{
	"/update_key":   true,
	"/revoke_key":   true,
	"/rotate_token": true,
}

// handle runs the full per-event pipeline while holding the user's lock:
// auth gate, routing, guards, action, render, audit.
func (d *Dispatcher) handle(userID int64, upd transport.Update) {
	switch {
	case upd.CallbackData != "":
		d.handleCallbackEvent(userID, upd)
	case strings.HasPrefix(upd.Text, "/"):
		d.handleSlashEvent(userID, upd)
	default:
		d.handlePlainText(userID, upd)
	}
}

func splitCommand(text string) (cmd string, args []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd = fields[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i] // strip Telegram's "/cmd@botname" suffix
	}
	return cmd, fields[1:]
}

func (d *Dispatcher) handleSlashEvent(userID int64, upd transport.Update) {
	cmd, args := splitCommand(upd.Text)

	// Auth gate: /login, /start, /help are reachable unauthenticated.
	if cmd == "/login" {
		d.handleLogin(userID, upd.ChatID, args)
		return
	}
	st := d.users.Get(userID)
	if cmd == "/start" || cmd == "/help" {
		d.handleHelp(upd.ChatID)
		return
	}
	if !st.Authorized {
		d.reply(upd.ChatID, "Please /login <server_ip> <key> first.", nil)
		return
	}
	if adminCommands[cmd] && !d.authMgr.IsAdmin(userID) {
		d.reply(upd.ChatID, "admin privileges required", nil)
		return
	}

	switch cmd {
	case "/tabs":
		d.handleTabs(userID, upd.ChatID)
	case "/jobs":
		d.handleJobsMenu(userID, upd.ChatID, st)
	case "/claude":
		d.handleSetMode(userID, upd.ChatID, userstate.ModeClaude)
	case "/interval":
		d.handleIntervalMenu(upd.ChatID)
	case "/refresh":
		d.handleRefresh(userID, upd.ChatID)
	case "/edit":
		d.handleEditList(userID, upd.ChatID)
	case "/cancel":
		d.handleCancel(userID, upd.ChatID)
	case "/update_key":
		d.handleUpdateKey(userID, upd.ChatID, args)
	case "/revoke_key":
		d.handleRevokeKey(userID, upd.ChatID, args)
	case "/rotate_token":
		d.handleRotateToken(userID, upd.ChatID, args)
	default:
		d.reply(upd.ChatID, "unknown command", nil)
	}
}

func (d *Dispatcher) handlePlainText(userID int64, upd transport.Update) {
	st := d.users.Get(userID)
	if !st.Authorized {
		d.reply(upd.ChatID, "Please /login <server_ip> <key> first.", nil)
		return
	}

	if d.edit.IsOpen(userID) {
		d.handleEditContent(userID, upd.ChatID, upd.Text)
		return
	}

	d.handleShellExec(userID, upd.ChatID, st, upd.Text)
}

// handleShellExec implements §4.I step 3 (guards) and step 4 (action) for
// plain-text shell commands routed to the active tab.
func (d *Dispatcher) handleShellExec(userID, chatID int64, st userstate.State, text string) {
	if st.ActiveTabID == "" {
		d.reply(chatID, "no active tab; use /tabs to create or select one", nil)
		return
	}
	verdict := d.policyCfg.Check(text)
	if !verdict.Allowed {
		d.reply(chatID, "blocked: "+string(verdict.Reason), nil)
		d.audit(userID, st.ActiveTabID, text, "policy_rejected:"+string(verdict.Reason))
		return
	}
	if !d.terminal.HasSession(st.ActiveTabID) {
		d.reply(chatID, "session missing", [][]transport.Button{{{Label: "Recreate", CallbackData: "tab:recreate:" + st.ActiveTabID}}})
		d.audit(userID, st.ActiveTabID, text, "session_missing")
		return
	}
	if err := d.terminal.SendText(st.ActiveTabID, text); err != nil {
		d.reply(chatID, "terminal driver error, try again", nil)
		d.audit(userID, st.ActiveTabID, text, "driver_fault")
		return
	}
	d.audit(userID, st.ActiveTabID, text, "sent")
}
