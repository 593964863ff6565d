package signal

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/peercall/internal/core"
)

type registration struct {
	id core.HandlerID
	h  core.Handler
}

// Bus dispatches inbound events to registered handlers in registration order.
// Handlers run on the emitting goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	next     core.HandlerID
	handlers map[string][]registration
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]registration)}
}

func (b *Bus) On(event string, h core.Handler) core.HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.handlers[event] = append(b.handlers[event], registration{id: b.next, h: h})
	return b.next
}

func (b *Bus) Off(event string, id core.HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[event]
	for i, r := range regs {
		if r.id == id {
			out := make([]registration, 0, len(regs)-1)
			out = append(out, regs[:i]...)
			b.handlers[event] = append(out, regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Emit invokes every handler of event. The handler list is copied first, so
// handlers may call On/Off.
func (b *Bus) Emit(event string, payload json.RawMessage) int {
	b.mu.RLock()
	regs := b.handlers[event]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	b.mu.RUnlock()

	for _, r := range snapshot {
		r.h(payload)
	}
	return len(snapshot)
}

func (b *Bus) HandlerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}
