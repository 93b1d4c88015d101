// Package rate paces outbound API calls so per-user Gmail quota is respected.
package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates outbound API calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Pacer releases calls at a fixed rate. The first call proceeds immediately;
// unused capacity does not accumulate beyond one pending slot.
type Pacer struct {
	ticker *time.Ticker
	slots  chan struct{}
	quit   chan struct{}
	done   chan struct{}
}

// NewPacer returns a limiter that allows rps calls per second.
func NewPacer(rps int) *Pacer {
	if rps <= 0 {
		rps = 1
	}
	p := &Pacer{
		ticker: time.NewTicker(time.Second / time.Duration(rps)),
		slots:  make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.slots <- struct{}{}
	go p.fill()
	return p
}

// Stopping the ticker does not close its channel, so fill needs an explicit
// quit signal to exit.
func (p *Pacer) fill() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case <-p.ticker.C:
			select {
			case p.slots <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a slot is available or the context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-p.slots:
		return nil
	}
}

// Stop releases the pacer's timer and waits for the fill goroutine to exit.
// Stop must be called exactly once.
func (p *Pacer) Stop() {
	p.ticker.Stop()
	close(p.quit)
	<-p.done
}

var _ Limiter = (*Pacer)(nil)
