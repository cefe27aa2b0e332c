package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Session is the per-message context the webhook attaches to a fragment.
type Session struct {
	ThreadID       string
	SubscriberName string
	Profile        clinic.Profile
}

// Batch is the coalesced message handed to the pipeline after a quiet period.
type Batch struct {
	UserID    string
	Message   string
	Fragments []string
	Session   Session
}

// FlushFunc processes one coalesced batch.
type FlushFunc func(ctx context.Context, b Batch) error

type pendingBatch struct {
	fragments []string
	session   Session
	timer     *time.Timer
	gen       uint64
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// DebouncerConfig configures a Debouncer.
type DebouncerConfig struct {
	QuietPeriod  time.Duration
	FlushTimeout time.Duration
	Flush        FlushFunc
	Metrics      *metrics.ConversationMetrics
	Logger       *logging.Logger
}

// Debouncer coalesces rapid fragments per user. Each user has at most one
// pending batch and one timer; a new fragment restarts the timer. Flushes for
// the same user never overlap.
type Debouncer struct {
	quiet        time.Duration
	flushTimeout time.Duration
	flush        FlushFunc
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger

	mu      sync.Mutex
	pending map[string]*pendingBatch
	locks   map[string]*userLock
	closed  bool
	wg      sync.WaitGroup
}

func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	if cfg.Flush == nil {
		panic("conversation: flush func cannot be nil")
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 12 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Debouncer{
		quiet:        cfg.QuietPeriod,
		flushTimeout: cfg.FlushTimeout,
		flush:        cfg.Flush,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.Component("debouncer"),
		pending:      make(map[string]*pendingBatch),
		locks:        make(map[string]*userLock),
	}
}

// Enqueue appends fragment to the user's pending batch and restarts the
// quiet-period timer. The latest session wins.
func (d *Debouncer) Enqueue(userID, fragment string, session Session) error {
	if strings.TrimSpace(userID) == "" {
		return errUserIDRequired
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrShuttingDown
	}

	b, ok := d.pending[userID]
	if !ok {
		b = &pendingBatch{}
		d.pending[userID] = b
	}
	b.fragments = append(b.fragments, fragment)
	b.session = session
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(d.quiet, func() { d.fire(userID, gen) })

	d.logger.Debug("fragment queued", "user_id", userID, "fragments", len(b.fragments))
	return nil
}

// Pending reports how many users currently have an unflushed batch.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// fire runs when a timer expires. A timer that lost the race with a newer
// fragment sees a different generation and does nothing.
func (d *Debouncer) fire(userID string, gen uint64) {
	d.mu.Lock()
	b, ok := d.pending[userID]
	if !ok || b.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, userID)
	d.wg.Add(1)
	d.mu.Unlock()

	d.run(userID, b)
}

func (d *Debouncer) run(userID string, b *pendingBatch) {
	defer d.wg.Done()

	lock := d.acquire(userID)
	defer d.release(userID, lock)

	batch := Batch{
		UserID:    userID,
		Message:   strings.Join(b.fragments, " "),
		Fragments: b.fragments,
		Session:   b.session,
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.flushTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.ObserveFlush("panic")
			d.logger.Error("flush panicked", "user_id", userID, "panic", fmt.Sprint(r))
		}
	}()

	if err := d.flush(ctx, batch); err != nil {
		d.metrics.ObserveFlush("error")
		d.logger.Error("flush failed", "user_id", userID, "error", err)
		return
	}
	d.metrics.ObserveFlush("ok")
}

func (d *Debouncer) acquire(userID string) *userLock {
	d.mu.Lock()
	l, ok := d.locks[userID]
	if !ok {
		l = &userLock{}
		d.locks[userID] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return l
}

func (d *Debouncer) release(userID string, l *userLock) {
	l.mu.Unlock()

	d.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(d.locks, userID)
	}
	d.mu.Unlock()
}

// Shutdown stops accepting fragments, flushes every pending batch now and
// waits for in-flight flushes or ctx expiry.
func (d *Debouncer) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	drained := make(map[string]*pendingBatch, len(d.pending))
	for userID, b := range d.pending {
		if b.timer != nil {
			b.timer.Stop()
		}
		drained[userID] = b
	}
	d.pending = make(map[string]*pendingBatch)
	d.wg.Add(len(drained))
	d.mu.Unlock()

	if len(drained) > 0 {
		d.logger.Info("flushing pending batches on shutdown", "count", len(drained))
	}
	for userID, b := range drained {
		go d.run(userID, b)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
