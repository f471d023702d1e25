// Package notify – delivery dispatcher.
//
// The dispatcher decouples delivery from ingestion: intents are enqueued on
// a buffered channel and executed by a bounded worker pool, so the webhook
// HTTP response returns promptly regardless of delivery outcome. Transient
// failures are re-enqueued by a timer after exponential backoff rather than
// blocking a worker in a sleep; permanent failures are dropped immediately
// and can flip the user's DM preference so the next event falls back to
// channel delivery.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/chat"
	"github.com/tbourn/go-media-notify/internal/domain"
	"github.com/tbourn/go-media-notify/internal/repo"
)

// maxBackoff caps the exponential retry delay regardless of attempt count.
const maxBackoff = time.Minute

// DispatcherOptions configures the worker pool and retry policy.
type DispatcherOptions struct {
	// Workers is the pool size; values < 1 are coerced to 1.
	Workers int
	// QueueSize is the buffered intent queue capacity; values < 1 become 16.
	QueueSize int
	// MaxRetries bounds total delivery attempts per intent; values < 1
	// become 1 (a single attempt, no retry).
	MaxRetries int
	// BackoffBase is the first retry delay; doubles per attempt. Values
	// <= 0 become 500ms.
	BackoffBase time.Duration
	// SendTimeout bounds each delivery call; values <= 0 become 10s.
	SendTimeout time.Duration
}

// Dispatcher consumes delivery intents and executes them against the chat
// gateway. Safe for concurrent use; Start must be called before Enqueue.
type Dispatcher struct {
	m  chat.Messenger
	db *gorm.DB // nil disables permanent-failure self-healing

	workers     int
	maxRetries  int
	backoffBase time.Duration
	sendTimeout time.Duration

	queue    chan domain.DeliveryIntent
	stopping chan struct{}
	stopOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup // workers
	pending sync.WaitGroup // intents not yet terminally resolved
	timers  sync.WaitGroup // armed retry timers
}

// NewDispatcher constructs a dispatcher sending through m. The db handle is
// used only for the self-healing preference update on permanent DM failure
// and may be nil in tests.
func NewDispatcher(m chat.Messenger, db *gorm.DB, opts DispatcherOptions) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 16
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		m:           m,
		db:          db,
		workers:     opts.Workers,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		sendTimeout: opts.SendTimeout,
		queue:       make(chan domain.DeliveryIntent, opts.QueueSize),
		stopping:    make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue hands an intent to the pool without blocking the caller. It
// returns false when the dispatcher is stopping or the queue is saturated;
// in both cases the intent is dropped and counted, never silently lost.
func (d *Dispatcher) Enqueue(it domain.DeliveryIntent) bool {
	select {
	case <-d.stopping:
		deliveriesTotal.WithLabelValues(outcomeDroppedShutdown).Inc()
		return false
	default:
	}

	// The pending count must rise before the intent becomes visible to a
	// worker, otherwise a fast worker can Done before this Add lands.
	d.pending.Add(1)
	select {
	case d.queue <- it:
		queueDepth.Inc()
		return true
	default:
		d.pending.Done()
		deliveriesTotal.WithLabelValues(outcomeDroppedQueueFull).Inc()
		log.Warn().
			Str("user_id", it.UserID).
			Str("fingerprint", it.Fingerprint).
			Msg("delivery queue saturated, intent dropped")
		return false
	}
}

// Stop rejects further intents, waits up to grace for in-flight intents
// (including armed retries) to resolve, then cancels whatever remains and
// joins the workers.
func (d *Dispatcher) Stop(grace time.Duration) {
	d.stopOnce.Do(func() { close(d.stopping) })

	drained := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(grace):
		log.Warn().Dur("grace", grace).Msg("dispatcher grace period elapsed, abandoning in-flight deliveries")
	}

	d.cancel()
	d.wg.Wait()
	d.timers.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case it := <-d.queue:
			queueDepth.Dec()
			d.deliver(it)
		}
	}
}

// deliver executes one attempt and resolves the intent: success, permanent
// drop, scheduled retry, or transient drop after the attempt budget.
func (d *Dispatcher) deliver(it domain.DeliveryIntent) {
	ctx, cancel := context.WithTimeout(d.ctx, d.sendTimeout)
	var err error
	if it.DM {
		err = d.m.SendDM(ctx, it.UserID, it.Content)
	} else {
		err = d.m.SendChannel(ctx, it.ChannelID, it.Content)
	}
	cancel()

	switch {
	case err == nil:
		deliveriesTotal.WithLabelValues(outcomeDelivered).Inc()
		d.pending.Done()

	case chat.IsPermanent(err):
		deliveriesTotal.WithLabelValues(outcomeDroppedPermanent).Inc()
		log.Warn().
			Err(err).
			Str("user_id", it.UserID).
			Bool("dm", it.DM).
			Msg("permanent delivery failure, intent dropped")
		d.selfHeal(it)
		d.pending.Done()

	default:
		d.retryOrDrop(it, err)
	}
}

// retryOrDrop schedules the next attempt after backoff, or drops the intent
// once the attempt budget is exhausted.
func (d *Dispatcher) retryOrDrop(it domain.DeliveryIntent, cause error) {
	it.Attempt++
	if it.Attempt >= d.maxRetries {
		deliveriesTotal.WithLabelValues(outcomeDroppedTransient).Inc()
		log.Error().
			Err(cause).
			Str("user_id", it.UserID).
			Str("fingerprint", it.Fingerprint).
			Int("attempts", it.Attempt).
			Msg("delivery failed after max retries, intent dropped")
		d.pending.Done()
		return
	}

	delay := d.backoffBase << (it.Attempt - 1)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	// A rate-limited gateway may suggest its own wait; honor it when longer.
	if ra := chat.RetryAfter(cause); ra > delay {
		delay = ra
	}

	retriesTotal.Inc()
	log.Debug().
		Err(cause).
		Str("user_id", it.UserID).
		Int("attempt", it.Attempt).
		Dur("delay", delay).
		Msg("transient delivery failure, retry scheduled")

	d.timers.Add(1)
	time.AfterFunc(delay, func() {
		defer d.timers.Done()
		select {
		case <-d.ctx.Done():
			deliveriesTotal.WithLabelValues(outcomeDroppedShutdown).Inc()
			d.pending.Done()
			return
		default:
		}
		select {
		case d.queue <- it:
			queueDepth.Inc()
		default:
			deliveriesTotal.WithLabelValues(outcomeDroppedQueueFull).Inc()
			d.pending.Done()
		}
	})
}

// selfHeal clears dm_instead after a permanent DM failure so the next event
// for this user routes to the notification channel instead.
func (d *Dispatcher) selfHeal(it domain.DeliveryIntent) {
	if !it.DM || d.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.SetDMInstead(ctx, d.db, it.UserID, false); err != nil {
		log.Error().Err(err).Str("user_id", it.UserID).Msg("failed to disable dm preference")
		return
	}
	log.Info().Str("user_id", it.UserID).Msg("dm delivery disabled after permanent failure, falling back to channel")
}
