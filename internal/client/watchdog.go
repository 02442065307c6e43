package client

import (
	"context"
	"sync"
	"time"
)

const (
	// keepAliveAfter is how long the server may stay silent before the
	// client sends a KEEP_ALIVE.
	keepAliveAfter = 5 * time.Second
	// deadAfter is how long the server may stay silent before the client
	// declares it unresponsive and exits.
	deadAfter = 30 * time.Second
	// checkInterval is the watchdog's polling period.
	checkInterval = time.Second
)

// Watchdog tracks the last moment any byte arrived from the server. The
// reader goroutine calls Touch; the watchdog task polls the timestamp.
type Watchdog struct {
	mu     sync.Mutex
	last   time.Time
	pinged bool // one keepalive per silent stretch
}

func NewWatchdog() *Watchdog {
	return &Watchdog{last: time.Now()}
}

// Touch records inbound activity and re-arms the keepalive.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	w.last = time.Now()
	w.pinged = false
	w.mu.Unlock()
}

type action int

const (
	actionNone action = iota
	actionKeepAlive
	actionDead
)

// tick decides what the silence observed at now calls for.
func (w *Watchdog) tick(now time.Time) action {
	w.mu.Lock()
	defer w.mu.Unlock()

	idle := now.Sub(w.last)
	switch {
	case idle > deadAfter:
		return actionDead
	case idle > keepAliveAfter && !w.pinged:
		w.pinged = true
		return actionKeepAlive
	}
	return actionNone
}

// Run polls once a second until ctx is canceled. sendKeepAlive is called
// after keepAliveAfter of silence; onDead is called once after deadAfter,
// and Run returns.
func (w *Watchdog) Run(ctx context.Context, sendKeepAlive func(), onDead func()) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			switch w.tick(now) {
			case actionKeepAlive:
				sendKeepAlive()
			case actionDead:
				onDead()
				return
			}
		}
	}
}
