package events

import (
	"context"
	"errors"
	"sync"

	"storecore/internal/logger"
	"storecore/internal/metrics"

	"go.uber.org/zap"
)

// Notifier receives events off the dispatcher queue, e.g. to send an email
// or push a websocket message.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

type NotifierFunc func(ctx context.Context, evt Event) error

func (f NotifierFunc) Notify(ctx context.Context, evt Event) error { return f(ctx, evt) }

var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher is an in-process Publisher: Publish enqueues on a buffered
// channel and never blocks; a fixed worker pool drains the queue. When the
// queue is full the event is dropped and counted.
type Dispatcher struct {
	queue    chan Event
	notifier Notifier
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	delivered *metrics.Counter
	dropped   *metrics.Counter
	failed    *metrics.Counter
}

func NewDispatcher(n Notifier, buffer, workers int, reg *metrics.Registry) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		queue:     make(chan Event, buffer),
		notifier:  n,
		delivered: reg.Counter("events.dispatch.delivered"),
		dropped:   reg.Counter("events.dispatch.dropped"),
		failed:    reg.Counter("events.dispatch.failed"),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
	return d
}

func (d *Dispatcher) Publish(ctx context.Context, evt Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- evt:
		return nil
	default:
		d.dropped.Inc()
		logger.FromCtx(ctx).Warn("event queue full, dropping event",
			zap.String("event_type", evt.Type), zap.String("event_id", evt.ID))
		return nil
	}
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	for evt := range d.queue {
		ctx := logger.WithCorrelationID(context.Background(), evt.CorrelationID)
		if err := d.notifier.Notify(ctx, evt); err != nil {
			d.failed.Inc()
			logger.FromCtx(ctx).Error("notifier failed",
				zap.Int("worker", id),
				zap.String("event_type", evt.Type),
				zap.Error(err))
			continue
		}
		d.delivered.Inc()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// LogNotifier writes each event to the structured log.
var LogNotifier = NotifierFunc(func(ctx context.Context, evt Event) error {
	logger.FromCtx(ctx).Info("domain event",
		zap.String("event_type", evt.Type),
		zap.String("event_id", evt.ID),
		zap.String("key", evt.Key),
		zap.ByteString("payload", evt.Payload))
	return nil
})

// NewPipeline queues events for Kafka when brokers are given and for the
// structured log otherwise. flush drains the queue, then closes the writer.
func NewPipeline(brokers []string, topic string, reg *metrics.Registry) (pub Publisher, flush func()) {
	var sink Notifier = LogNotifier
	var kp *KafkaPublisher
	if len(brokers) > 0 {
		kp = NewKafkaPublisher(NewKafkaWriter(brokers, topic), reg)
		sink = NotifierFunc(kp.Publish)
	}

	d := NewDispatcher(sink, 1024, 4, reg)
	return d, func() {
		d.Close()
		if kp != nil {
			if err := kp.Close(); err != nil {
				logger.L().Warn("close kafka writer failed", zap.Error(err))
			}
		}
	}
}
