package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LoickBck/MediciNet/internal/appointment"
)

type DispatcherOptions struct {
	Workers         int
	QueueSize       int
	DeliveryTimeout time.Duration
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Dispatcher runs notification delivery off the request path. Send only
// enqueues; a fixed pool of workers drains the queue into the Sender.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, opts.QueueSize),
		timeout: opts.DeliveryTimeout,
		log:     opts.Logger,
		now:     opts.Now,
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker(i)
	}
	return d
}

// Send enqueues a message and returns its id as the receipt. It never blocks:
// a full queue is reported as ErrQueueFull.
func (d *Dispatcher) Send(_ context.Context, n appointment.Notification) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return "", ErrDispatcherClosed
	}

	msg := Message{
		ID:              uuid.NewString(),
		RecipientUserID: n.RecipientUserID,
		Text:            n.Text,
		DedupeKey:       n.Key,
		QueuedAt:        d.now(),
	}

	select {
	case d.queue <- msg:
		return msg.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered,
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
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
		return fmt.Errorf("drain notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()

	for msg := range d.queue {
		// The request that produced msg is usually finished by now.
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Deliver(ctx, msg)
		cancel()

		if err != nil {
			d.log.Warn().
				Err(fmt.Errorf("%w: %v", ErrDeliveryFailed, err)).
				Int("worker", n).
				Str("message_id", msg.ID).
				Str("user_id", msg.RecipientUserID).
				Msg("notification dropped")
			continue
		}

		d.log.Debug().
			Int("worker", n).
			Str("message_id", msg.ID).
			Dur("queued_for", d.now().Sub(msg.QueuedAt)).
			Msg("notification delivered")
	}
}
