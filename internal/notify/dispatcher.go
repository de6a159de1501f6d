package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// InviteEmail is the message sent to a prospective co-parent.
type InviteEmail struct {
	To            string
	InviteeName   string
	InviterName   string
	CompanionName string
	Token         string
	ExpiresAt     time.Time
}

// Mailer delivers invite emails.
type Mailer interface {
	SendInvite(ctx context.Context, email InviteEmail) error
}

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// ErrDispatcherClosed is returned by Enqueue after Shutdown.
var ErrDispatcherClosed = errors.New("invite dispatcher closed")

// Dispatcher delivers invite emails on a bounded queue drained by a worker
// pool, so request handlers never wait on the mail provider.
type Dispatcher struct {
	mailer  Mailer
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan InviteEmail
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher starts the worker pool.
func NewDispatcher(mailer Mailer, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		mailer:  mailer,
		logger:  logger,
		timeout: cfg.SendTimeout,
		jobs:    make(chan InviteEmail, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules delivery. It blocks while the queue is full until ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, email InviteEmail) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.jobs <- email:
		return nil
	}
}

// Shutdown stops accepting emails and waits for queued ones to be delivered.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for email := range d.jobs {
		d.deliver(email)
	}
}

func (d *Dispatcher) deliver(email InviteEmail) {
	if d.mailer == nil {
		d.logger.Error("invite dispatcher missing mailer", "to", email.To)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.mailer.SendInvite(ctx, email); err != nil {
		d.logger.Error("invite email delivery failed", "to", email.To, "companion", email.CompanionName, "error", err)
		return
	}
	d.logger.Info("invite email delivered", "to", email.To, "companion", email.CompanionName)
}
