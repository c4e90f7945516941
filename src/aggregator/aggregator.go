package aggregator

import (
	"sync"

	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// ringBuffer is a fixed-size circular buffer of tick records.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type ringBuffer struct {
	data     []*models.MTickRecord
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}
	return &ringBuffer{
		data:     make([]*models.MTickRecord, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// append adds a record, overwriting the oldest entry when full (FIFO eviction).
func (rb *ringBuffer) append(tick *models.MTickRecord) {
	rb.data[rb.index] = tick
	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// all returns the records in insertion order (oldest to newest).
func (rb *ringBuffer) all() []*models.MTickRecord {
	if rb.size == 0 {
		return []*models.MTickRecord{}
	}

	result := make([]*models.MTickRecord, rb.size)

	// Buffer full: oldest is at the write index (wrap-around); otherwise 0.
	startIdx := 0
	if rb.size == rb.capacity {
		startIdx = rb.index
	}

	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------
// Aggregator
// -----------------------------------------------------------------------------

// Aggregator keeps a bounded per-symbol time series of tick records for
// pull-based consumers (chart polling). Pure data structure, no I/O.
type Aggregator struct {
	Name   string
	Logger *logger.Logger

	mu       sync.RWMutex
	capacity int
	buffers  map[string]*ringBuffer
}

// -----------------------------------------------------------------------------

// NewAggregator creates an Aggregator whose per-symbol buffers hold capacity
// records each.
func NewAggregator(logger *logger.Logger, capacity int) *Aggregator {
	return &Aggregator{
		Name:     "TickAggregator",
		Logger:   logger,
		capacity: capacity,
		buffers:  make(map[string]*ringBuffer),
	}
}

// -----------------------------------------------------------------------------

// Append stores the tick in its symbol's buffer, creating the buffer lazily
// on the symbol's first tick and evicting the oldest record at capacity.
func (a *Aggregator) Append(tick *models.MTickRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[tick.Symbol]
	if !ok {
		buf = newRingBuffer(a.capacity)
		a.buffers[tick.Symbol] = buf
		a.Logger.Debug("%s : created buffer for %s (capacity %d)", a.Name, tick.Symbol, a.capacity)
	}
	buf.append(tick)
}

// -----------------------------------------------------------------------------

// Snapshot returns a consistent point-in-time copy of the requested symbols'
// buffers, oldest record first. Symbols with no buffer yet are omitted.
// Records are immutable after normalization, so copying the slices is enough
// for readers to never observe a mutation mid-read.
func (a *Aggregator) Snapshot(symbols []string) map[string][]*models.MTickRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if symbols == nil {
		symbols = make([]string, 0, len(a.buffers))
		for symbol := range a.buffers {
			symbols = append(symbols, symbol)
		}
	}

	result := make(map[string][]*models.MTickRecord, len(symbols))
	for _, symbol := range symbols {
		if buf, ok := a.buffers[symbol]; ok {
			result[symbol] = buf.all()
		}
	}
	return result
}

// -----------------------------------------------------------------------------

// Depths returns the current number of buffered records per symbol.
func (a *Aggregator) Depths() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	depths := make(map[string]int, len(a.buffers))
	for symbol, buf := range a.buffers {
		depths[symbol] = buf.size
	}
	return depths
}

// -----------------------------------------------------------------------------

// Clear drops every buffer.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buffers = make(map[string]*ringBuffer)
}
