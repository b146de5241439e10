package transport

import (
	"context"
	"sort"
	"sync"
)

// Handler processes one inbound event kind.
type Handler func(ctx context.Context, msg *Message)

// Dispatcher routes inbound events to registered handlers, one per kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// On registers h for kind. Registering a kind twice returns ErrDuplicateHandler.
func (d *Dispatcher) On(kind string, h Handler) error {
	if kind == "" || h == nil {
		return NewError(ErrorInvalidConfig, "handler needs a kind and a function")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = make(map[string]Handler)
	}
	if _, exists := d.handlers[kind]; exists {
		return NewError(ErrorDuplicateHandler, "handler already registered for "+kind)
	}
	d.handlers[kind] = h
	return nil
}

// Kinds returns the registered kinds in sorted order.
func (d *Dispatcher) Kinds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]string, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Dispatch runs the handler for msg.Kind and reports whether one existed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) bool {
	d.mu.RLock()
	h := d.handlers[msg.Kind]
	d.mu.RUnlock()
	if h == nil {
		return false
	}
	h(ctx, msg)
	return true
}
