package mailer

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Sender is satisfied by Client and by test doubles.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher serializes sends through a token bucket so the provider's
// request cap (2/s) is respected no matter how many notifications a
// settlement fans out.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
	mu      sync.Mutex
}

// NewDispatcher creates a dispatcher throttled to sendsPerSecond.
func NewDispatcher(sender Sender, sendsPerSecond float64) *Dispatcher {
	if sendsPerSecond <= 0 {
		sendsPerSecond = 2
	}
	return &Dispatcher{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(sendsPerSecond), 1),
	}
}

// Send blocks until a token is available, then delivers. The mutex
// keeps sends strictly one-after-another even across goroutines.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return d.sender.Send(ctx, msg)
}
