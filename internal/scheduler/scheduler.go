// Package scheduler is the per-(user, active tab) output capture loop: one
// logical timer per active pair, diffing against the last emission, and
// prompt-rule-gated incremental flushes in claude mode.
package scheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/loppo-llc/tgbotctl/internal/promptrule"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

// Driver is the subset of internal/terminal.Driver the scheduler needs.
type Driver interface {
	Capture(tabID string, scrollbackLines int) (string, error)
}

// Outbound is one emitted chat message.
type Outbound struct {
	UserID  int64
	Text    string
	Buttons []promptrule.Button
}

// Emitter sends scheduler output through the chat transport.
type Emitter func(Outbound)

// Locker lets the scheduler respect the per-user serialization invariant:
// a tick that can't acquire the user's lock is skipped rather than queued.
type Locker interface {
	TryLockUser(userID int64) (unlock func(), ok bool)
}

// Config controls capture size and message chunking.
type Config struct {
	ScrollbackLines int
	FallbackLines   int
	MaxMessageLen   int
}

type tabTimer struct {
	entryID     cron.EntryID
	tabID       string
	lastEmitted string // full normalized text of the last full/incremental emission baseline
}

// Scheduler runs one cron entry per active (user, tab) pair.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	driver  Driver
	rules   *promptrule.Engine
	users   *userstate.Store
	locker  Locker
	emit    Emitter
	cfg     Config
	logger  *slog.Logger
	active  map[int64]*tabTimer // userID -> current active tab timer
}

func New(driver Driver, rules *promptrule.Engine, users *userstate.Store, locker Locker, emit Emitter, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScrollbackLines <= 0 {
		cfg.ScrollbackLines = 2000
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 4000
	}
	return &Scheduler{
		cron:   cron.New(),
		driver: driver,
		rules:  rules,
		users:  users,
		locker: locker,
		emit:   emit,
		cfg:    cfg,
		logger: logger,
		active: make(map[int64]*tabTimer),
	}
}

// Start begins the cron scheduler loop.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop drains the cron scheduler loop.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

// SetActiveTab stops the previous timer for userID (if any) and starts a
// new one for tabID at the given interval. Passing an interval with
// Duration() ok=false (e.g. "never") stops ticking without starting a new
// timer — matching "Interval changes reset the timer phase."
func (s *Scheduler) SetActiveTab(userID int64, tabID string, interval userstate.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.active[userID]; ok {
		s.cron.Remove(t.entryID)
		delete(s.active, userID)
	}

	dur, ok := interval.Duration()
	if !ok || tabID == "" {
		return
	}

	t := &tabTimer{tabID: tabID}
	spec := "@every " + dur.String()
	entryID, err := s.cron.AddFunc(spec, func() { s.tick(userID, t) })
	if err != nil {
		s.logger.Warn("scheduler: add cron entry failed", "user_id", userID, "err", err)
		return
	}
	t.entryID = entryID
	s.active[userID] = t
}

// tick is the cron callback. A tick that can't acquire the user's lock is
// skipped rather than queued, so a slow command never produces a backlog
// of stale captures.
func (s *Scheduler) tick(userID int64, t *tabTimer) {
	unlock, ok := s.locker.TryLockUser(userID)
	if !ok {
		return
	}
	defer unlock()
	s.captureAndEmit(userID, t, false)
}

// RefreshNow performs one immediate, unconditional capture and emission for
// the user's currently active tab.
func (s *Scheduler) RefreshNow(userID int64) {
	s.mu.Lock()
	t, ok := s.active[userID]
	s.mu.Unlock()
	if !ok {
		// No running timer (interval "never", or not yet armed since
		// startup): capture the active tab recorded in the user store.
		tabID := s.users.Get(userID).ActiveTabID
		if tabID == "" {
			return
		}
		t = &tabTimer{tabID: tabID}
	}
	s.captureAndEmit(userID, t, true)
}

func hashOf(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (s *Scheduler) captureAndEmit(userID int64, t *tabTimer, force bool) {
	text, err := s.driver.Capture(t.tabID, s.cfg.ScrollbackLines)
	if err != nil {
		s.logger.Warn("scheduler: capture failed", "user_id", userID, "tab_id", t.tabID, "err", err)
		return
	}

	st := s.users.Get(userID)
	hash := hashOf(text)
	changed := st.LastCaptureHash[t.tabID] != hash

	if !force && !changed {
		return
	}

	switch st.Mode {
	case userstate.ModeClaude:
		s.emitClaude(userID, t, text, st, force)
	default:
		s.emitNormal(userID, t, text)
	}

	if err := s.users.SetLastCaptureHash(userID, t.tabID, hash); err != nil {
		s.logger.Warn("scheduler: persist capture hash failed", "user_id", userID, "err", err)
	}
}

func (s *Scheduler) emitNormal(userID int64, t *tabTimer, text string) {
	s.send(userID, text, nil)
	t.lastEmitted = normalize(text)
}

func (s *Scheduler) emitClaude(userID int64, t *tabTimer, text string, st userstate.State, force bool) {
	var override promptrule.Override
	if st.PromptOverride != nil {
		override = promptrule.Override{
			Enabled:          st.PromptOverride.Enabled,
			ForceIncremental: st.PromptOverride.ForceIncremental,
		}
	}

	signal := s.rules.Evaluate(text, override)
	if signal == nil && !force {
		return
	}

	tail, _ := incrementalTail(t.lastEmitted, text, s.cfg.FallbackLines)
	if tail == "" && !force {
		return
	}

	var buttons []promptrule.Button
	if signal != nil {
		buttons = signal.Buttons
	}
	s.send(userID, tail, buttons)
	t.lastEmitted = normalize(text)
}

func (s *Scheduler) send(userID int64, text string, buttons []promptrule.Button) {
	pieces := chunk(text, s.cfg.MaxMessageLen)
	for i, piece := range pieces {
		var pieceButtons []promptrule.Button
		if i == len(pieces)-1 {
			pieceButtons = buttons
		}
		s.emit(Outbound{UserID: userID, Text: piece, Buttons: pieceButtons})
	}
}
