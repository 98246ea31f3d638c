package indexer

import (
	"context"
	"time"
)

// Backoff yields exponentially growing delays between failed ticks, capped at max.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next attempt and doubles it for the one after.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.base
	}
	delay := b.current

	b.current *= 2
	if b.current > b.max || b.current <= 0 {
		b.current = b.max
	}
	return delay
}

// Reset restarts the sequence at the base delay.
func (b *Backoff) Reset() {
	b.current = 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
