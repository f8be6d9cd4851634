package store

import (
	"context"
	"sync"
	"time"

	"OfficeChat/internal/conversation"
)

// DefaultSaveDelay is the quiet period before a state change is written.
const DefaultSaveDelay = 500 * time.Millisecond

type saver interface {
	Save(ctx context.Context, state conversation.State) error
}

// AutoSaver writes the latest state once no change has arrived for the save
// delay. Every Notify restarts the delay; timers are never stacked.
type AutoSaver struct {
	store saver
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *conversation.State
	stopped bool

	saveMu sync.Mutex // one Save at a time, in notification order
}

// NewAutoSaver returns a saver writing to s after delay of inactivity.
func NewAutoSaver(s saver, delay time.Duration) *AutoSaver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &AutoSaver{store: s, delay: delay}
}

// Notify records state as the value to save and restarts the delay.
func (a *AutoSaver) Notify(state conversation.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.pending = &state
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.delay, a.fire)
}

func (a *AutoSaver) fire() {
	_ = a.Flush(context.Background())
}

// Flush saves the pending state now, if any.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	state := a.pending
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if state == nil {
		return nil
	}
	return a.store.Save(ctx, *state)
}

// Stop flushes the pending state and ignores later notifications.
func (a *AutoSaver) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	return a.Flush(ctx)
}
