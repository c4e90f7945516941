package registry

import (
	"sync"

	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// THandle identifies one callback registration for later removal.
type THandle uint64

// TickHandler consumes one normalized tick. Handlers run synchronously on the
// streamer worker in registration order; a slow handler delays delivery of
// the next tick to every other handler. There is no backpressure here, that
// is the documented contract: handlers must not block.
type TickHandler func(tick *models.MTickRecord)

// -----------------------------------------------------------------------------

type registration struct {
	handle   THandle
	category models.MCategory
	callback TickHandler
}

// HandlerRegistry maps a tick category to an ordered list of subscriber
// callbacks and fans ticks out to them with per-callback isolation.
type HandlerRegistry struct {
	Name   string
	Logger *logger.Logger

	mu       sync.RWMutex
	next     THandle
	handlers map[models.MCategory][]*registration
}

// -----------------------------------------------------------------------------

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry(logger *logger.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		Name:     "HandlerRegistry",
		Logger:   logger,
		handlers: make(map[models.MCategory][]*registration),
	}
}

// -----------------------------------------------------------------------------
// PUBLIC METHODS
// -----------------------------------------------------------------------------

// Register appends the callback to the category's fan-out list and returns a
// handle for Unregister. Registration order is the dispatch call order.
func (r *HandlerRegistry) Register(category models.MCategory, callback TickHandler) THandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	reg := &registration{
		handle:   r.next,
		category: category,
		callback: callback,
	}
	r.handlers[category] = append(r.handlers[category], reg)

	r.Logger.Info("%s : registered handler %d for %s ticks (%d total)",
		r.Name, reg.handle, category, len(r.handlers[category]))
	return reg.handle
}

// -----------------------------------------------------------------------------

// Unregister removes the registration; removing an unknown handle is a no-op.
func (r *HandlerRegistry) Unregister(handle THandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for category, regs := range r.handlers {
		for i, reg := range regs {
			if reg.handle == handle {
				r.handlers[category] = append(regs[:i], regs[i+1:]...)
				r.Logger.Info("%s : unregistered handler %d for %s ticks", r.Name, handle, category)
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Dispatch invokes every callback registered for the tick's category, in
// registration order, on the calling goroutine. A panicking callback is
// logged and skipped; the remaining callbacks still run.
func (r *HandlerRegistry) Dispatch(tick *models.MTickRecord) {
	r.mu.RLock()
	regs := r.handlers[tick.Category]
	callbacks := make([]*registration, len(regs))
	copy(callbacks, regs)
	r.mu.RUnlock()

	for _, reg := range callbacks {
		r.invoke(reg, tick)
	}
}

// -----------------------------------------------------------------------------

// Reset drops every registration.
func (r *HandlerRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[models.MCategory][]*registration)
}

// -----------------------------------------------------------------------------

// Count returns the number of callbacks registered for the category.
func (r *HandlerRegistry) Count(category models.MCategory) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[category])
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// invoke runs one callback with panic isolation.
func (r *HandlerRegistry) invoke(reg *registration, tick *models.MTickRecord) {
	defer func() {
		if rec := recover(); rec != nil {
			r.Logger.Error("%s : handler %d panicked on %s tick for %s: %v",
				r.Name, reg.handle, tick.Category, tick.Symbol, rec)
		}
	}()
	reg.callback(tick)
}
