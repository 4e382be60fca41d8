package dispatcher

import (
	"fmt"
	"strconv"

	"github.com/loppo-llc/tgbotctl/internal/auth"
	"github.com/loppo-llc/tgbotctl/internal/config"
	"github.com/loppo-llc/tgbotctl/internal/transport"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

const helpText = `tgbotctl — remote terminal controller

/login <server_ip> <key> — authenticate
/tabs — list and manage terminal tabs
/jobs — job control for the active tab
/claude — switch to coding-assistant mode
/interval — change the output polling interval
/refresh — capture the active tab now
/edit — open a file for editing
/cancel — cancel an in-progress edit`

func mainMenu() [][]transport.Button {
	return [][]transport.Button{
		{{Label: "Tabs", CallbackData: "tab:list"}, {Label: "Jobs", CallbackData: "jobs:list"}},
		{{Label: "Claude mode", CallbackData: "mode:claude"}, {Label: "Shell mode", CallbackData: "mode:shell"}},
		{{Label: "Interval", CallbackData: "interval:list"}, {Label: "Refresh", CallbackData: "refresh:now"}},
		{{Label: "Edit", CallbackData: "edit:list"}},
	}
}

func (d *Dispatcher) handleHelp(chatID int64) {
	d.reply(chatID, helpText, mainMenu())
}

func (d *Dispatcher) handleLogin(userID, chatID int64, args []string) {
	if len(args) != 2 {
		d.reply(chatID, "usage: /login <server_ip> <key>", nil)
		return
	}
	claimedIP, key := args[0], args[1]
	outcome := d.authMgr.Login(userID, claimedIP, key)
	switch outcome.Kind {
	case auth.Granted:
		if err := d.users.MarkAuthorized(userID, claimedIP); err != nil {
			d.reply(chatID, "internal error, try again", nil)
			d.audit(userID, "", "/login", "internal_error")
			return
		}
		d.reply(chatID, "logged in", mainMenu())
		d.audit(userID, "", "/login", "granted")
	case auth.LockedOut:
		d.reply(chatID, fmt.Sprintf("locked out until %s", outcome.Until.Format("15:04:05")), nil)
		d.audit(userID, "", "/login", "locked_out")
	default:
		d.reply(chatID, "login denied", nil)
		d.audit(userID, "", "/login", "denied:"+string(outcome.Reason))
	}
}

func (d *Dispatcher) handleTabs(userID, chatID int64) {
	tabs := d.registry.ListTags(userID)
	if len(tabs) == 0 {
		d.reply(chatID, "no tabs yet", [][]transport.Button{{{Label: "New tab", CallbackData: "tab:new"}}})
		return
	}
	var rows [][]transport.Button
	for _, t := range tabs {
		label := t.DisplayName
		if t.Broken {
			label += " (broken)"
		}
		rows = append(rows, []transport.Button{{Label: label, CallbackData: "tab:select:" + t.TabID}})
	}
	rows = append(rows, []transport.Button{{Label: "New tab", CallbackData: "tab:new"}})
	d.reply(chatID, "your tabs:", rows)
}

func (d *Dispatcher) handleJobsMenu(userID, chatID int64, st userstate.State) {
	if st.ActiveTabID == "" {
		d.reply(chatID, "no active tab", nil)
		return
	}
	if err := d.terminal.SendText(st.ActiveTabID, "jobs"); err != nil {
		d.reply(chatID, "terminal driver error, try again", nil)
		return
	}
	d.sched.RefreshNow(userID)
	d.reply(chatID, "job control:", [][]transport.Button{
		{{Label: "List", CallbackData: "jobs:list"}, {Label: "Suspend (Ctrl-Z)", CallbackData: "jobs:ctrlz"}},
	})
}

func (d *Dispatcher) handleSetMode(userID, chatID int64, mode userstate.Mode) {
	if err := d.users.SetMode(userID, mode); err != nil {
		d.reply(chatID, "internal error, try again", nil)
		return
	}
	d.reply(chatID, "mode set to "+string(mode), nil)
}

func (d *Dispatcher) handleIntervalMenu(chatID int64) {
	d.reply(chatID, "choose interval:", [][]transport.Button{
		{{Label: "1m", CallbackData: "interval:set:1m"}, {Label: "5m", CallbackData: "interval:set:5m"}},
		{{Label: "1h", CallbackData: "interval:set:1h"}, {Label: "never", CallbackData: "interval:set:never"}},
	})
}

func (d *Dispatcher) handleRefresh(userID, chatID int64) {
	st := d.users.Get(userID)
	if st.ActiveTabID == "" {
		d.reply(chatID, "no active tab", nil)
		return
	}
	d.sched.RefreshNow(userID)
}

func (d *Dispatcher) handleEditList(userID, chatID int64) {
	entries, err := d.edit.ListFiles(".", 0)
	if err != nil {
		d.reply(chatID, "cannot list files", nil)
		return
	}
	if len(entries) == 0 {
		d.reply(chatID, "no files found", nil)
		return
	}
	var rows [][]transport.Button
	for _, e := range entries {
		rows = append(rows, []transport.Button{{Label: e.Name, CallbackData: "edit:open:" + e.Name}})
	}
	d.reply(chatID, "select a file to edit:", rows)
}

func (d *Dispatcher) handleEditContent(userID, chatID int64, text string) {
	if err := d.edit.Save(userID, text); err != nil {
		d.reply(chatID, "edit failed: "+err.Error(), nil)
		d.audit(userID, "", "edit:save", "failed")
		return
	}
	d.reply(chatID, "saved", nil)
	d.audit(userID, "", "edit:save", "ok")
}

func (d *Dispatcher) handleCancel(userID, chatID int64) {
	if err := d.edit.Cancel(userID); err != nil {
		d.reply(chatID, "nothing to cancel", nil)
		return
	}
	d.reply(chatID, "edit cancelled", nil)
}

// requireTOTP enforces SPEC_FULL §3.1: admin credential-rotation commands
// require a trailing 6-digit TOTP code when the admin has a secret
// enrolled. Returns the remaining args (with the code stripped) and true if
// the check passed.
func (d *Dispatcher) requireTOTP(userID, chatID int64, args []string) ([]string, bool) {
	if !d.authMgr.RequiresTOTP(userID) {
		return args, true
	}
	if len(args) == 0 {
		d.reply(chatID, "TOTP code required as the last argument", nil)
		return nil, false
	}
	code := args[len(args)-1]
	if !d.authMgr.ValidateCode(userID, code) {
		d.reply(chatID, "invalid TOTP code", nil)
		return nil, false
	}
	return args[:len(args)-1], true
}

func (d *Dispatcher) handleUpdateKey(userID, chatID int64, args []string) {
	args, ok := d.requireTOTP(userID, chatID, args)
	if !ok {
		return
	}
	if len(args) < 2 || len(args) > 3 {
		d.reply(chatID, "usage: /update_key <user_id> <new_key> [expires_at] [totp]", nil)
		return
	}
	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		d.reply(chatID, "invalid user_id", nil)
		return
	}
	exp, err := config.ParseExpiresAt(optionalArg(args, 2))
	if err != nil {
		d.reply(chatID, "invalid expires_at", nil)
		return
	}
	if err := d.authMgr.UpdateKey(targetID, args[1], exp); err != nil {
		d.reply(chatID, "internal error, try again", nil)
		return
	}
	d.reply(chatID, "key updated", nil)
	d.audit(userID, "", "/update_key", "ok")
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (d *Dispatcher) handleRevokeKey(userID, chatID int64, args []string) {
	args, ok := d.requireTOTP(userID, chatID, args)
	if !ok {
		return
	}
	if len(args) != 1 {
		d.reply(chatID, "usage: /revoke_key <user_id> [totp]", nil)
		return
	}
	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		d.reply(chatID, "invalid user_id", nil)
		return
	}
	if err := d.authMgr.RevokeKey(targetID); err != nil {
		d.reply(chatID, "internal error, try again", nil)
		return
	}
	d.reply(chatID, "key revoked", nil)
	d.audit(userID, "", "/revoke_key", "ok")
}

func (d *Dispatcher) handleRotateToken(userID, chatID int64, args []string) {
	if len(args) == 1 && args[0] == "enroll" && !d.authMgr.RequiresTOTP(userID) {
		d.enrollTOTP(userID, chatID)
		return
	}
	args, ok := d.requireTOTP(userID, chatID, args)
	if !ok {
		return
	}
	if len(args) != 1 {
		d.reply(chatID, "usage: /rotate_token <new_token> [totp]", nil)
		return
	}
	if err := d.authMgr.UpdateKey(userID, args[0], nil); err != nil {
		d.reply(chatID, "internal error, try again", nil)
		return
	}
	d.reply(chatID, "token rotated", nil)
	d.audit(userID, "", "/rotate_token", "ok")
}

func (d *Dispatcher) enrollTOTP(userID, chatID int64) {
	enrollment, err := auth.Enroll(userID, strconv.FormatInt(userID, 10))
	if err != nil {
		d.reply(chatID, "enrollment failed", nil)
		return
	}
	if err := d.authMgr.SetTOTPSecret(userID, enrollment.Secret); err != nil {
		d.reply(chatID, "enrollment failed", nil)
		return
	}
	if err := d.transport.Send(transport.Outbound{
		ChatID:   chatID,
		Text:     "scan this QR code with your authenticator app",
		PhotoPNG: enrollment.PNG,
	}); err != nil {
		d.logger.Warn("dispatcher: enrollment photo send failed", "err", err)
	}
	d.audit(userID, "", "/rotate_token enroll", "ok")
}
