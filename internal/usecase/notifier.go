package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"NewsSignal/internal/domain/models"
	domrepo "NewsSignal/internal/domain/repository"
	domsvc "NewsSignal/internal/domain/service"
	"NewsSignal/internal/service/notify"
	"NewsSignal/internal/services/antiflutter"
	"NewsSignal/internal/services/rolling"
	xlogger "NewsSignal/pkg/logger"
)

const notifierStateKey = "antiflutter"

// NotifierState is what gets checkpointed between restarts.
type NotifierState struct {
	Machine      antiflutter.State `json:"machine" msgpack:"machine"`
	LastDecision string            `json:"last_decision,omitempty" msgpack:"last_decision"`
	LastID       string            `json:"last_id,omitempty" msgpack:"last_id"`
	SavedAt      time.Time         `json:"saved_at" msgpack:"saved_at"`
}

// Notifier drains newly committed records through the antiflutter machine
// and sends an alert for every emit. It owns the machine; ticks are
// serialized.
type Notifier struct {
	mu      sync.Mutex
	history *rolling.History
	cursor  uint64
	machine *antiflutter.Machine
	sink    domrepo.NotificationSink
	store   domrepo.StateStore
	logger  *xlogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
	lastID  string
	lastDec string
}

var _ domsvc.Notifier = (*Notifier)(nil)

type NotifierOption func(*Notifier)

func WithNotifierStore(s domrepo.StateStore) NotifierOption {
	return func(n *Notifier) { n.store = s }
}

func WithNotifierLogger(l *xlogger.Logger) NotifierOption {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

func WithNotifierMetrics(m domrepo.Metrics) NotifierOption {
	return func(n *Notifier) { n.metrics = m }
}

func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(history *rolling.History, machine *antiflutter.Machine, sink domrepo.NotificationSink, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		history: history,
		machine: machine,
		sink:    sink,
		logger:  xlogger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Restore loads checkpointed state. Records committed before the call are
// treated as already seen. A missing or broken snapshot is logged and the
// notifier starts from NoBaseline.
func (n *Notifier) Restore(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cursor = n.history.Seq()
	if n.store == nil {
		return
	}
	var st NotifierState
	if err := n.store.Load(ctx, notifierStateKey, &st); err != nil {
		if !errors.Is(err, domrepo.ErrStateNotFound) {
			n.logger.Warn("notifier state load failed; starting fresh", xlogger.Error(err))
		}
		return
	}
	n.machine.Restore(st.Machine)
	n.lastID, n.lastDec = st.LastID, st.LastDecision
	n.logger.Info("notifier state restored",
		xlogger.String("last_decision", st.LastDecision),
		xlogger.Bool("armed", st.Machine.Armed))
}

// PollNotifications runs one tick. Each record is fed to the machine at
// most once; NEUTRAL records never alert. Sink failures are logged and the
// alert is not retried. The machine is clocked by the tick, not by commit
// times, so records drained in one tick share one now and cooldowns are
// measured between ticks.
func (n *Notifier) PollNotifications(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	recs, next := n.history.Since(n.cursor)
	n.cursor = next
	changed := false
	for _, r := range recs {
		if r.Decision == models.DecisionNeutral {
			continue
		}
		changed = true
		n.lastID, n.lastDec = r.ID, r.Decision.String()
		if !n.machine.OnDecision(r.Decision, now) {
			n.logger.Debug("alert suppressed",
				xlogger.String("id", r.ID),
				xlogger.String("decision", r.Decision.String()))
			continue
		}
		msg := notify.Format(models.NotificationEvent{
			Decision:   r.Decision,
			Confidence: r.Confidence,
			Reasons:    r.Reasons,
			Source:     r.Source,
			Timestamp:  now,
		})
		if n.sink == nil {
			continue
		}
		if err := n.sink.Send(ctx, msg); err != nil {
			n.logger.Warn("alert delivery failed", xlogger.String("id", r.ID), xlogger.Error(err))
			if n.metrics != nil {
				n.metrics.RecordError("notify")
			}
		}
	}
	if changed {
		n.saveLocked(ctx)
	}
}

// Checkpoint persists the current state; the scheduler calls it too.
func (n *Notifier) Checkpoint(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.saveLocked(ctx)
}

func (n *Notifier) saveLocked(ctx context.Context) {
	if n.store == nil {
		return
	}
	st := NotifierState{Machine: n.machine.State(), LastDecision: n.lastDec, LastID: n.lastID, SavedAt: n.now()}
	if err := n.store.Save(ctx, notifierStateKey, st); err != nil {
		n.logger.Warn("notifier state save failed", xlogger.Error(err))
		if n.metrics != nil {
			n.metrics.RecordError("state_save")
		}
	}
}

// State returns a copy of the machine state for the debug surface.
func (n *Notifier) State() antiflutter.State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.machine.State()
}
