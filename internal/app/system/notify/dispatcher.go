// internal/app/system/notify/dispatcher.go
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/trackhub/internal/app/store/outbox"
	"github.com/dalemusser/trackhub/internal/app/system/mailer"
	"go.uber.org/zap"
)

// Dispatcher is a background worker that drains the notification
// outbox. It claims pending events one at a time, hands them to the
// mail sender, and records the outcome, so API requests never wait on
// SMTP.
type Dispatcher struct {
	outbox   *outbox.Store
	sender   mailer.Sender
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewDispatcher creates an outbox dispatcher. interval is how often the
// queue is polled when it has gone empty (e.g., 15 seconds).
func NewDispatcher(outboxStore *outbox.Store, sender mailer.Sender, logger *zap.Logger, interval time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:   outboxStore,
		sender:   sender,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background dispatch loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.run()
	d.log.Info("outbox dispatcher started", zap.Duration("interval", d.interval))
}

// Stop signals the dispatcher to stop and waits for it to finish. Any
// event claimed mid-flight is finished first.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.log.Info("outbox dispatcher stopped")
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.drain()
		}
	}
}

// drain delivers pending events until the queue is empty or a stop is
// requested.
func (d *Dispatcher) drain() {
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}
		if !d.dispatchOne() {
			return
		}
	}
}

// dispatchOne claims and delivers a single event. Returns false when
// the queue is empty.
func (d *Dispatcher) dispatchOne() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ev, err := d.outbox.ClaimPending(ctx)
	if err != nil {
		if !errors.Is(err, outbox.ErrNoPending) {
			d.log.Error("failed to claim outbox event", zap.Error(err))
		}
		return false
	}

	sendErr := d.sender.Send(ctx, mailer.Email{
		To:       ev.Recipient,
		Subject:  ev.Subject,
		TextBody: ev.Body,
	})
	if sendErr != nil {
		d.log.Warn("notification delivery failed",
			zap.String("event_id", ev.ID.Hex()),
			zap.String("recipient", ev.Recipient),
			zap.Int("attempts", ev.Attempts),
			zap.Error(sendErr))
		if err := d.outbox.MarkFailed(ctx, ev.ID, sendErr); err != nil {
			d.log.Error("failed to record delivery failure", zap.Error(err))
		}
		return true
	}

	if err := d.outbox.MarkSent(ctx, ev.ID); err != nil {
		d.log.Error("failed to mark event sent", zap.Error(err))
		return true
	}
	d.log.Info("notification delivered",
		zap.String("event_id", ev.ID.Hex()),
		zap.String("recipient", ev.Recipient))
	return true
}
