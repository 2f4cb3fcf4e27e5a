// Package service orchestrates the domain packages into the Decision
// Pipeline and Retention Sweeper described for the policy daemon.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sentinelgate/policyd/internal/domain/inquiry"
)

// UpdatesChannel is the one channel the wire-level Observer interface
// defines.
const UpdatesChannel = "updates"

// Event is the payload delivered to Observer.Emit for every completed
// inquiry decision.
type Event struct {
	Record  inquiry.Record
	Version string
	Verdict string
}

// Observer is a best-effort, at-most-once sink for decision events. A
// slow or absent subscriber must never slow down or block a decision.
type Observer interface {
	Emit(ctx context.Context, channel string, event Event)
}

// NopObserver discards every event. The default when no realtime sink is
// configured.
type NopObserver struct{}

func (NopObserver) Emit(context.Context, string, Event) {}

// FanoutObserver delivers events to every current subscriber. Emit never
// blocks on a subscriber: one that isn't keeping up loses events rather
// than stalling the Decision Pipeline.
type FanoutObserver struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	logger      *slog.Logger
}

// NewFanoutObserver builds an empty FanoutObserver.
func NewFanoutObserver(logger *slog.Logger) *FanoutObserver {
	return &FanoutObserver{
		subscribers: make(map[int]chan Event),
		logger:      logger,
	}
}

// Subscribe registers a new listener with the given buffer depth and
// returns its id (for Unsubscribe) and the channel to read events from.
func (f *FanoutObserver) Subscribe(buffer int) (id int, events <-chan Event) {
	if buffer < 1 {
		buffer = 1
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id = f.nextID
	ch := make(chan Event, buffer)
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *FanoutObserver) Unsubscribe(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		delete(f.subscribers, id)
		close(ch)
	}
}

// Emit fans the event out to every current subscriber on the updates
// channel; any other channel name is ignored, matching the wire-level
// Observer contract (channel="updates" is the only one defined).
func (f *FanoutObserver) Emit(_ context.Context, channel string, event Event) {
	if channel != UpdatesChannel {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			f.logger.Warn("observer subscriber lagging, dropping event", "subscriber", id)
		}
	}
}
