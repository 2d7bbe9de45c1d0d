package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"revchain/core/events"
	"revchain/observability"
)

const eventHistoryLimit = 2048

// CommittedEvent is a ledger event that has been durably committed.
type CommittedEvent struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

func cloneCommittedEvent(evt CommittedEvent) CommittedEvent {
	cloned := evt
	if evt.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// EventFeed sequences committed events, keeps a bounded history and fans
// them out to subscribers. Slow subscribers miss events rather than block the
// ledger.
type EventFeed struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan CommittedEvent
	history []CommittedEvent
}

// NewEventFeed creates an empty feed.
func NewEventFeed() *EventFeed {
	return &EventFeed{subs: make(map[uint64]chan CommittedEvent)}
}

func (f *EventFeed) publish(batch []events.Event, timestamp int64) []CommittedEvent {
	if f == nil || len(batch) == 0 {
		return nil
	}
	committed := make([]CommittedEvent, 0, len(batch))

	f.mu.Lock()
	for _, evt := range batch {
		if evt == nil {
			continue
		}
		payload := evt.Event()
		if payload == nil {
			continue
		}
		f.seq++
		entry := CommittedEvent{
			Sequence:   f.seq,
			Cursor:     strconv.FormatUint(f.seq, 10),
			Type:       payload.Type,
			Attributes: payload.Clone().Attributes,
			Timestamp:  timestamp,
		}
		committed = append(committed, entry)
		f.history = append(f.history, cloneCommittedEvent(entry))
	}
	if len(f.history) > eventHistoryLimit {
		excess := len(f.history) - eventHistoryLimit
		trimmed := make([]CommittedEvent, eventHistoryLimit)
		copy(trimmed, f.history[excess:])
		f.history = trimmed
	}
	// Sends stay under mu: cancel closes channels while holding it.
	for _, entry := range committed {
		for _, ch := range f.subs {
			select {
			case ch <- cloneCommittedEvent(entry):
			default:
				observability.Events().RecordDropped()
			}
		}
	}
	f.mu.Unlock()
	return committed
}

// Subscribe registers a subscriber for events after the supplied cursor. The
// backlog holds retained history newer than the cursor; cancel releases the
// subscription and closes the channel.
func (f *EventFeed) Subscribe(ctx context.Context, cursor string) (<-chan CommittedEvent, func(), []CommittedEvent, error) {
	if f == nil {
		return nil, nil, nil, fmt.Errorf("event feed not initialised")
	}
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}
	updates := make(chan CommittedEvent, 64)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = updates
	history := make([]CommittedEvent, len(f.history))
	copy(history, f.history)
	f.mu.Unlock()

	backlog := make([]CommittedEvent, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneCommittedEvent(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
			f.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}

// History returns retained events newer than the cursor, oldest first,
// capped at limit when limit > 0.
func (f *EventFeed) History(since uint64, limit int) []CommittedEvent {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]CommittedEvent, 0)
	for _, entry := range f.history {
		if entry.Sequence <= since {
			continue
		}
		out = append(out, cloneCommittedEvent(entry))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
