package scheduler

import (
	"sync"
	"time"

	domds "github.com/stellarlab/lcsearch/internal/domain/dataset"
)

// Wire statuses for the streaming protocol. They track the dataset
// state machine except that a completed dataset reports "ok".
const (
	WireQueued     = "queued"
	WireRunning    = "running"
	WireBackground = "background"
	WireOK         = "ok"
	WireFailed     = "failed"
)

// wireStatus maps a dataset status to its wire form.
func wireStatus(s domds.Status) string {
	if s == domds.StatusComplete {
		return WireOK
	}
	return string(s)
}

// statusRank orders wire statuses so attachers never observe a
// regression when they join mid-stream.
func statusRank(status string) int {
	switch status {
	case WireQueued:
		return 0
	case WireRunning:
		return 1
	case WireBackground:
		return 2
	default: // ok, failed
		return 3
	}
}

// Event is one line of the streaming status protocol.
type Event struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result"`
	Time    time.Time      `json:"time"`
}

// Terminal reports whether no further events will follow.
func (e Event) Terminal() bool {
	return e.Status == WireOK || e.Status == WireFailed
}

func newEvent(status, message string, result map[string]any) Event {
	return Event{Status: status, Message: message, Result: result, Time: time.Now().UTC()}
}

const subscriberBuffer = 32

// broadcaster fans scheduler events out to every caller attached to a
// dataset. Workers publish without ever blocking: a subscriber that
// stops draining (client gone) just misses events past its buffer, and
// background work continues regardless.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string][]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string][]chan Event)}
}

// open registers a dataset as actively streaming.
func (b *broadcaster) open(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[setID]; !ok {
		b.subs[setID] = nil
	}
}

// subscribe attaches to an active dataset. ok=false means the dataset is
// not streaming (already finished, or unknown to this process).
func (b *broadcaster) subscribe(setID string) (<-chan Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, active := b.subs[setID]; !active {
		return nil, false
	}
	ch := make(chan Event, subscriberBuffer)
	b.subs[setID] = append(b.subs[setID], ch)
	return ch, true
}

// publish sends an event to every subscriber, never blocking.
func (b *broadcaster) publish(setID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[setID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// finish closes all subscriber channels and forgets the dataset.
func (b *broadcaster) finish(setID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[setID] {
		close(ch)
	}
	delete(b.subs, setID)
}
