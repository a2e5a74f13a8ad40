// Package event provides a simple synchronous/async event dispatcher.
// Services fire domain events (product registered, custody appended,
// product sold) and listeners fan them out to the websocket feed.
package event

import (
	"sync"

	"github.com/shashiranjanraj/veritas/pkg/workerpool"
)

// Event names fired by the services layer.
const (
	ProductRegistered = "product.registered"
	CustodyAppended   = "custody.appended"
	ProductSold       = "product.sold"
)

// Handler is a function that receives an event payload.
type Handler func(payload interface{})

var (
	mu       sync.RWMutex
	handlers = map[string][]Handler{}

	// Async handlers run on a bounded pool so a burst of ledger writes
	// cannot spawn an unbounded number of goroutines.
	pool = workerpool.New(16)
)

// Listen registers a handler for the given event name.
func Listen(event string, handler Handler) {
	mu.Lock()
	defer mu.Unlock()
	handlers[event] = append(handlers[event], handler)
}

// Fire dispatches an event synchronously to all registered listeners.
func Fire(event string, payload interface{}) {
	for _, h := range snapshot(event) {
		h(payload)
	}
}

// FireAsync dispatches the event to all listeners on the shared worker
// pool. It returns immediately without waiting for handlers to complete.
// If the pool is saturated the handler runs inline so no event is lost.
func FireAsync(event string, payload interface{}) {
	for _, h := range snapshot(event) {
		h := h
		if err := pool.Submit(func() { h(payload) }); err != nil {
			h(payload)
		}
	}
}

func snapshot(event string) []Handler {
	mu.RLock()
	defer mu.RUnlock()
	hs := make([]Handler, len(handlers[event]))
	copy(hs, handlers[event])
	return hs
}

// Flush removes all listeners (useful in tests).
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	handlers = map[string][]Handler{}
}
