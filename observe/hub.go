package observe

import (
	"sync"

	"github.com/realmfikri/ridehail-sim/engine"
)

// Hub fans out the latest block snapshot to any number of subscribers
// (WebSocket connections) without ever letting a slow subscriber
// back-pressure the simulation — sends are non-blocking and best-effort,
// matching §7's snapshot-emission failure semantics.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan engine.BlockResult]struct{}
	latest      engine.BlockResult
	haveLatest  bool
	results     engine.Results
	haveResults bool
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan engine.BlockResult]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel has a small buffer; if a subscriber
// falls behind, Publish drops the snapshot for that subscriber rather than
// blocking.
func (h *Hub) Subscribe() (<-chan engine.BlockResult, func()) {
	ch := make(chan engine.BlockResult, 4)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish records br as the latest snapshot and offers it to every
// subscriber, never blocking the caller.
func (h *Hub) Publish(br engine.BlockResult) {
	h.mu.Lock()
	h.latest = br
	h.haveLatest = true
	for ch := range h.subscribers {
		select {
		case ch <- br:
		default:
		}
	}
	h.mu.Unlock()
}

// Latest returns the most recent snapshot and whether one has been
// published yet.
func (h *Hub) Latest() (engine.BlockResult, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest, h.haveLatest
}

// SetResults records the most recent terminal results, available to
// observers once a run finishes.
func (h *Hub) SetResults(r engine.Results) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = r
	h.haveResults = true
}

// Results returns the last terminal results set, if any.
func (h *Hub) Results() (engine.Results, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.results, h.haveResults
}
