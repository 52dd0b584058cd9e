package escalation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/simonlevelai/askeve-platform/internal/observability/metrics"
	"github.com/simonlevelai/askeve-platform/pkg/logging"
)

// ErrQueueFull is returned when the delivery queue cannot accept more work.
var ErrQueueFull = errors.New("escalation: delivery queue full")

// AsyncDispatcher delivers nurse alerts on a background worker so the
// conversation reply never waits on webhook retries. Delivery uses its own
// context: a user disconnecting must not cancel an in-flight crisis alert.
type AsyncDispatcher struct {
	notifier Notifier
	store    EventStore
	logger   *logging.Logger

	queue  chan *Event
	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// NewAsyncDispatcher creates a dispatcher with the given queue capacity.
func NewAsyncDispatcher(notifier Notifier, store EventStore, queueSize int, logger *logging.Logger) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AsyncDispatcher{
		notifier: notifier,
		store:    store,
		logger:   logger,
		queue:    make(chan *Event, queueSize),
	}
}

var _ Dispatcher = (*AsyncDispatcher)(nil)

// Start launches the delivery workers.
func (d *AsyncDispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Dispatch enqueues an event for delivery. It never blocks; a full queue is
// reported to the caller so the event can be marked for the pending sweep.
func (d *AsyncDispatcher) Dispatch(event *Event) error {
	select {
	case d.queue <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains in-flight deliveries and shuts the workers down.
func (d *AsyncDispatcher) Stop() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		if d.cancel != nil {
			d.cancel()
		}
	})
}

func (d *AsyncDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for event := range d.queue {
		d.deliver(ctx, event)
	}
}

func (d *AsyncDispatcher) deliver(ctx context.Context, event *Event) {
	deliveryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result, err := d.notifier.SendCrisisAlert(deliveryCtx, PayloadForEvent(event))
	if result != nil {
		metrics.NotificationDeliveries.WithLabelValues(result.Status).Inc()
	}
	if err != nil {
		d.logger.Error("nurse alert delivery failed",
			"escalation_id", event.ID,
			"error", err,
		)
		if markErr := d.store.MarkDeliveryFailed(deliveryCtx, event.ID, err.Error()); markErr != nil {
			d.logger.Error("failed to record delivery failure", "escalation_id", event.ID, "error", markErr)
		}
		return
	}
	if markErr := d.store.MarkNotified(deliveryCtx, event.ID, time.Now().UTC()); markErr != nil {
		d.logger.Error("failed to record delivery success", "escalation_id", event.ID, "error", markErr)
	}
}

// SyncDispatcher delivers inline. Used in tests and single-shot tools.
type SyncDispatcher struct {
	notifier Notifier
	store    EventStore
}

func NewSyncDispatcher(notifier Notifier, store EventStore) *SyncDispatcher {
	return &SyncDispatcher{notifier: notifier, store: store}
}

var _ Dispatcher = (*SyncDispatcher)(nil)

func (d *SyncDispatcher) Dispatch(event *Event) error {
	ctx := context.Background()
	result, err := d.notifier.SendCrisisAlert(ctx, PayloadForEvent(event))
	if result != nil {
		metrics.NotificationDeliveries.WithLabelValues(result.Status).Inc()
	}
	if err != nil {
		if markErr := d.store.MarkDeliveryFailed(ctx, event.ID, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}
	return d.store.MarkNotified(ctx, event.ID, time.Now().UTC())
}
