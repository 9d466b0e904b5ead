// Package views holds the in-process view models fed by each refresh cycle.
// Every view implements the pipeline subscriber contract and is safe to read
// from HTTP handlers while a cycle delivers new data.
package views

import "sync"

// Selection is emitted when a table row is chosen.
type Selection struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Magnitude float64 `json:"magnitude"`
	Title     string  `json:"title"`
}

// SelectionBus delivers selections to registered handlers in order.
type SelectionBus struct {
	mu       sync.RWMutex
	handlers []func(Selection)
}

// NewSelectionBus creates an empty bus.
func NewSelectionBus() *SelectionBus {
	return &SelectionBus{}
}

// Subscribe registers h for every subsequent selection.
func (b *SelectionBus) Subscribe(h func(Selection)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish calls every handler synchronously.
func (b *SelectionBus) Publish(s Selection) {
	b.mu.RLock()
	handlers := make([]func(Selection), len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(s)
	}
}
