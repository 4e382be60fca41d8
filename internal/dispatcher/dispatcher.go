// Package dispatcher is the core state machine: it routes inbound chat
// events, acquires per-user exclusivity, calls the auth/registry/policy/
// edit-session/terminal subcomponents in order, and emits responses and
// audit records.
package dispatcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/loppo-llc/tgbotctl/internal/audit"
	"github.com/loppo-llc/tgbotctl/internal/auth"
	"github.com/loppo-llc/tgbotctl/internal/editsession"
	"github.com/loppo-llc/tgbotctl/internal/policy"
	"github.com/loppo-llc/tgbotctl/internal/registry"
	"github.com/loppo-llc/tgbotctl/internal/scheduler"
	"github.com/loppo-llc/tgbotctl/internal/terminal"
	"github.com/loppo-llc/tgbotctl/internal/transport"
	"github.com/loppo-llc/tgbotctl/internal/userstate"
)

// Terminal is the subset of internal/terminal.Driver the dispatcher needs.
type Terminal interface {
	HasSession(tabID string) bool
	CreateSession(tabID, workDir string) error
	SendText(tabID, text string) error
	SendKey(tabID string, key terminal.Key) error
	Capture(tabID string, scrollbackLines int) (string, error)
}

// userQueue is one user's serialized inbound mailbox.
type userQueue struct {
	mu     sync.Mutex // held for the duration of one event's processing
	events chan event
}

type event struct {
	upd transport.Update
}

// Dispatcher wires components B-H behind per-user serialization.
type Dispatcher struct {
	terminal   Terminal
	registry   *registry.Registry
	users      *userstate.Store
	authMgr    *auth.Manager
	policyCfg  *policy.Config
	edit       *editsession.Manager
	sched      *scheduler.Scheduler
	auditLog   *audit.Log
	transport  transport.Adapter
	logger     *slog.Logger

	queuesMu sync.Mutex
	queues   map[int64]*userQueue

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Deps bundles every collaborator the dispatcher needs.
type Deps struct {
	Terminal  Terminal
	Registry  *registry.Registry
	Users     *userstate.Store
	Auth      *auth.Manager
	Policy    *policy.Config
	Edit      *editsession.Manager
	Scheduler *scheduler.Scheduler
	Audit     *audit.Log
	Transport transport.Adapter
	Logger    *slog.Logger
}

func New(d Deps) *Dispatcher {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Dispatcher{
		terminal:  d.Terminal,
		registry:  d.Registry,
		users:     d.Users,
		authMgr:   d.Auth,
		policyCfg: d.Policy,
		edit:      d.Edit,
		sched:     d.Scheduler,
		auditLog:  d.Audit,
		transport: d.Transport,
		logger:    d.Logger,
		queues:    make(map[int64]*userQueue),
		shutdown:  make(chan struct{}),
	}
}

// SetScheduler wires the output scheduler after construction. The scheduler
// itself depends on the dispatcher as a Locker, so the two can't be built in
// a single constructor call; callers build the dispatcher first, build the
// scheduler with the dispatcher as its locker, then call SetScheduler.
func (d *Dispatcher) SetScheduler(s *scheduler.Scheduler) {
	d.sched = s
}

// TryLockUser implements scheduler.Locker: a scheduler tick that can't
// acquire the user's lock is skipped rather than queued.
func (d *Dispatcher) TryLockUser(userID int64) (unlock func(), ok bool) {
	q := d.queueFor(userID)
	if !q.mu.TryLock() {
		return nil, false
	}
	return q.mu.Unlock, true
}

func (d *Dispatcher) queueFor(userID int64) *userQueue {
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()
	q, ok := d.queues[userID]
	if !ok {
		q = &userQueue{events: make(chan event, 32)}
		d.queues[userID] = q
		d.wg.Add(1)
		go d.workerLoop(userID, q)
	}
	return q
}

// Run consumes the transport's update channel, routing each update into its
// user's queue. Events for distinct users process in parallel; events for
// the same user are strictly ordered.
func (d *Dispatcher) Run() {
	for {
		select {
		case <-d.shutdown:
			return
		case upd, ok := <-d.transport.Updates():
			if !ok {
				return
			}
			q := d.queueFor(upd.UserID)
			select {
			case q.events <- event{upd: upd}:
			case <-d.shutdown:
				return
			}
		}
	}
}

// Shutdown drains per-user queues with a bounded grace window before
// forcing termination (the caller enforces the bound via context/time).
func (d *Dispatcher) Shutdown() {
	close(d.shutdown)
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(userID int64, q *userQueue) {
	defer d.wg.Done()
	for {
		select {
		case <-d.shutdown:
			// Drain events already queued for this user before exiting.
			for {
				select {
				case ev := <-q.events:
					q.mu.Lock()
					d.handle(userID, ev.upd)
					q.mu.Unlock()
				default:
					return
				}
			}
		case ev, ok := <-q.events:
			if !ok {
				return
			}
			q.mu.Lock()
			d.handle(userID, ev.upd)
			q.mu.Unlock()
		}
	}
}

func (d *Dispatcher) reply(chatID int64, text string, buttons [][]transport.Button) {
	if err := d.transport.Send(transport.Outbound{ChatID: chatID, Text: text, Buttons: buttons}); err != nil {
		d.logger.Warn("dispatcher: send failed", "chat_id", chatID, "err", err)
	}
}

func (d *Dispatcher) audit(userID int64, tabID, command, outcome string) {
	d.auditLog.Append(audit.Record{
		Timestamp: time.Now(),
		UserID:    userID,
		TabID:     tabID,
		Command:   command,
		Outcome:   outcome,
	})
}
