package dispatcher

import (
	"strings"

	"github.com/google/uuid"

	"github.com/loppo-llc/tgbotctl/internal/registry"
	"github.com/loppo-llc/tgbotctl/internal/terminal"
	"github.com/loppo-llc/tgbotctl/internal/transport"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

// callback is the decoded prefix-colon callback-data grammar from spec §6 —
// a tagged variant, not a string to re-parse downstream.
type callback struct {
	kind string // tab, interval, refresh, edit, jobs, mode, prompt
	op   string // list, new, select, rename, close, set, open, save, ctrlz, bg, claude, shell, now, recreate, send
	arg  string
}

func parseCallback(data string) (callback, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 {
		return callback{}, false
	}
	cb := callback{kind: parts[0], op: parts[1]}
	if len(parts) == 3 {
		cb.arg = parts[2]
	}
	switch cb.kind {
	case "tab", "interval", "refresh", "edit", "jobs", "mode", "prompt":
		return cb, true
	default:
		return callback{}, false
	}
}

func (d *Dispatcher) handleCallbackEvent(userID int64, upd transport.Update) {
	st := d.users.Get(userID)
	if !st.Authorized {
		d.reply(upd.ChatID, "Please /login <server_ip> <key> first.", nil)
		return
	}

	cb, ok := parseCallback(upd.CallbackData)
	if !ok {
		d.reply(upd.ChatID, "bad action", nil)
		d.audit(userID, "", upd.CallbackData, "bad_callback")
		return
	}

	switch cb.kind {
	case "tab":
		d.handleTabCallback(userID, upd.ChatID, cb)
	case "interval":
		d.handleIntervalCallback(userID, upd.ChatID, cb)
	case "refresh":
		d.handleRefresh(userID, upd.ChatID)
	case "edit":
		d.handleEditCallback(userID, upd.ChatID, cb)
	case "jobs":
		d.handleJobsCallback(userID, upd.ChatID, st, cb)
	case "mode":
		d.handleModeCallback(userID, upd.ChatID, cb)
	case "prompt":
		d.handlePromptCallback(userID, upd.ChatID, st, cb)
	}
}

func (d *Dispatcher) handleTabCallback(userID, chatID int64, cb callback) {
	switch cb.op {
	case "list":
		d.handleTabs(userID, chatID)
	case "new":
		tab, err := d.registry.CreateTag(userID, "tab-"+randSuffix())
		if err != nil {
			d.reply(chatID, "could not create tab: "+err.Error(), nil)
			return
		}
		if err := d.activateTab(userID, tab); err != nil {
			d.reply(chatID, "internal error, try again", nil)
			return
		}
		d.reply(chatID, "created and switched to "+tab.DisplayName, nil)
	case "select", "recreate":
		tab, ok := d.registry.Get(cb.arg)
		if !ok {
			d.reply(chatID, "unknown tab", nil)
			return
		}
		if cb.op == "recreate" || !d.terminal.HasSession(tab.TabID) {
			if err := d.terminal.CreateSession(tab.TabID, ""); err != nil {
				d.reply(chatID, "terminal driver error, try again", nil)
				return
			}
		}
		if err := d.activateTab(userID, tab); err != nil {
			d.reply(chatID, "internal error, try again", nil)
			return
		}
		d.reply(chatID, "switched to "+tab.DisplayName, nil)
	case "rename":
		d.reply(chatID, "renaming tabs is not supported from chat", nil)
	case "close":
		if err := d.registry.CloseTag(cb.arg); err != nil {
			d.reply(chatID, "could not close tab: "+err.Error(), nil)
			return
		}
		if st := d.users.Get(userID); st.ActiveTabID == cb.arg {
			d.users.SetActiveTab(userID, "")
			d.sched.SetActiveTab(userID, "", userstate.IntervalNone)
		}
		d.reply(chatID, "tab closed", nil)
	default:
		d.reply(chatID, "bad action", nil)
	}
}

// activateTab commits the active-tab transition to the durable store before
// starting the scheduler timer, per §4.I step 4 ("state transition is
// committed to the durable stores before emitting the confirming
// response").
func (d *Dispatcher) activateTab(userID int64, tab registry.Tab) error {
	if err := d.users.SetActiveTab(userID, tab.TabID); err != nil {
		return err
	}
	st := d.users.Get(userID)
	d.sched.SetActiveTab(userID, tab.TabID, st.Interval)
	return d.registry.Touch(tab.TabID)
}

func (d *Dispatcher) handleIntervalCallback(userID, chatID int64, cb callback) {
	switch cb.op {
	case "list":
		d.handleIntervalMenu(chatID)
	case "set":
		interval := userstate.Interval(cb.arg)
		switch interval {
		case userstate.Interval1m, userstate.Interval5m, userstate.Interval1h, userstate.IntervalNone:
		default:
			d.reply(chatID, "bad action", nil)
			return
		}
		if err := d.users.SetInterval(userID, interval); err != nil {
			d.reply(chatID, "internal error, try again", nil)
			return
		}
		st := d.users.Get(userID)
		d.sched.SetActiveTab(userID, st.ActiveTabID, interval)
		d.reply(chatID, "interval set to "+cb.arg, nil)
	default:
		d.reply(chatID, "bad action", nil)
	}
}

func (d *Dispatcher) handleEditCallback(userID, chatID int64, cb callback) {
	switch cb.op {
	case "list":
		d.handleEditList(userID, chatID)
	case "open":
		content, err := d.edit.Open(userID, cb.arg)
		if err != nil {
			d.reply(chatID, "cannot open: "+err.Error(), nil)
			return
		}
		d.reply(chatID, "current content:\n"+content+"\n\nsend replacement content, or /cancel", nil)
	case "save":
		// Content already captured via plain-text routing; this callback
		// is reserved for an explicit save confirmation button.
		d.reply(chatID, "send the replacement content as a plain message to save", nil)
	default:
		d.reply(chatID, "bad action", nil)
	}
}

func (d *Dispatcher) handleJobsCallback(userID, chatID int64, st userstate.State, cb callback) {
	if st.ActiveTabID == "" {
		d.reply(chatID, "no active tab", nil)
		return
	}
	switch cb.op {
	case "list":
		d.handleJobsMenu(userID, chatID, st)
	case "ctrlz":
		if err := d.terminal.SendKey(st.ActiveTabID, terminal.KeyCtrlZ); err != nil {
			d.reply(chatID, "terminal driver error, try again", nil)
			return
		}
		d.audit(userID, st.ActiveTabID, "jobs:ctrlz", "sent")
		d.sched.RefreshNow(userID)
	case "bg":
		if err := d.terminal.SendText(st.ActiveTabID, "bg %"+cb.arg); err != nil {
			d.reply(chatID, "terminal driver error, try again", nil)
			return
		}
		d.audit(userID, st.ActiveTabID, "jobs:bg:"+cb.arg, "sent")
		d.sched.RefreshNow(userID)
	default:
		d.reply(chatID, "bad action", nil)
	}
}

func (d *Dispatcher) handleModeCallback(userID, chatID int64, cb callback) {
	switch cb.op {
	case "claude":
		d.handleSetMode(userID, chatID, userstate.ModeClaude)
	case "shell":
		d.handleSetMode(userID, chatID, userstate.ModeNormal)
	default:
		d.reply(chatID, "bad action", nil)
	}
}

// handlePromptCallback sends a prompt rule's button action — literal
// keystrokes, not policy-checked shell input — to the user's active tab.
func (d *Dispatcher) handlePromptCallback(userID, chatID int64, st userstate.State, cb callback) {
	if cb.op != "send" || cb.arg == "" {
		d.reply(chatID, "bad action", nil)
		return
	}
	if st.ActiveTabID == "" {
		d.reply(chatID, "no active tab", nil)
		return
	}
	if err := d.terminal.SendText(st.ActiveTabID, cb.arg); err != nil {
		d.reply(chatID, "terminal driver error, try again", nil)
		d.audit(userID, st.ActiveTabID, cb.arg, "driver_fault")
		return
	}
	d.audit(userID, st.ActiveTabID, cb.arg, "prompt_button_sent")
	d.sched.RefreshNow(userID)
}

func randSuffix() string {
	// Auto-named tabs just need to avoid colliding with the unique
	// display-name invariant; a short uuid fragment is enough.
	return uuid.NewString()[:8]
}
