package uthreads

import (
	"sync"
	"time"
)

// TimerSource delivers a periodic interrupt after quantum elapses, until
// Stop is called. spec.md §1 treats this as an external collaborator,
// specified only by this interface. Arm must not block; onTick is invoked
// from a dedicated goroutine, asynchronously with respect to whichever user
// thread currently holds the CPU.
type TimerSource interface {
	Arm(quantum time.Duration, onTick func()) error
	Stop()
}

// tickerTimer is the portable default: a time.Ticker driving virtual time.
// It works on every platform, which is why Core falls back to it whenever a
// more hardware-faithful TimerSource hasn't been configured.
type tickerTimer struct {
	mu     sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
}

func newTickerTimer() *tickerTimer {
	return &tickerTimer{}
}

func (t *tickerTimer) Arm(quantum time.Duration, onTick func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if quantum <= 0 {
		return systemErr("TimerSource.Arm", "quantum must be > 0")
	}
	t.ticker = time.NewTicker(quantum)
	t.stopCh = make(chan struct{})
	go func(ticker *time.Ticker, stop chan struct{}) {
		for {
			select {
			case <-ticker.C:
				onTick()
			case <-stop:
				return
			}
		}
	}(t.ticker, t.stopCh)
	return nil
}

func (t *tickerTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.stopCh)
		t.ticker = nil
	}
}
