package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"slfs-backend/domain"
	"slfs-backend/internal/broker"
)

// Dispatcher publishes domain events off the request path. Events are
// buffered in memory; when the buffer is full new events are dropped.
type Dispatcher struct {
	publisher broker.Publisher
	queue     chan domain.Event
	log       *logrus.Entry
	now       func() time.Time
	wg        sync.WaitGroup

	// mu guards closed; Emit holds the read lock while sending so the queue
	// is never closed under a sender.
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher broker.Publisher, buffer int, log *logrus.Entry) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan domain.Event, buffer),
		log:       log,
		now:       time.Now,
	}
}

func (d *Dispatcher) Start(workerCount int) {
	if workerCount <= 0 {
		workerCount = 1
	}

	for i := 1; i <= workerCount; i++ {
		d.wg.Add(1)
		go d.run(i)
	}
}

// Emit queues an event for publishing without blocking.
func (d *Dispatcher) Emit(subject string, payload any) {
	evt := domain.Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: d.now().UTC(),
		Payload:    payload,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.WithFields(logrus.Fields{"subject": subject, "event_id": evt.ID}).Warn("dispatcher stopped, dropping event")
		return
	}

	select {
	case d.queue <- evt:
	default:
		d.log.WithFields(logrus.Fields{"subject": subject, "event_id": evt.ID}).Warn("event buffer full, dropping event")
	}
}

// Stop closes the queue and waits for queued events to be published or for
// ctx to expire. Events emitted after Stop are dropped.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

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

func (d *Dispatcher) run(worker int) {
	defer d.wg.Done()

	for evt := range d.queue {
		d.publish(worker, evt)
	}
}

func (d *Dispatcher) publish(worker int, evt domain.Event) {
	data, err := sonic.Marshal(evt)
	if err != nil {
		d.log.WithError(err).WithField("subject", evt.Subject).Error("could not encode event")
		return
	}

	if err := d.publisher.Publish(evt.Subject, data); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"worker":   worker,
			"subject":  evt.Subject,
			"event_id": evt.ID,
		}).Error("could not publish event")
		return
	}

	d.log.WithFields(logrus.Fields{"worker": worker, "subject": evt.Subject}).Debug("event published")
}
