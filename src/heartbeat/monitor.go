package heartbeat

import (
	"context"
	"sync"
	"time"

	"market-streamer/src/logger"

	"github.com/benbjohnson/clock"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// Monitor watches last-seen-per-symbol timestamps and reports stale symbols.
// Silence beyond the timeout means the connection is dead even though the
// transport still looks open; the streamer reacts by reconnecting.
type Monitor struct {
	Name   string
	Logger *logger.Logger

	clock         clock.Clock
	checkInterval time.Duration
	timeout       time.Duration

	// symbols returns the actively subscribed symbols at check time.
	symbols func() []string
	// onStale is invoked once per sweep with the quietest stale symbol.
	onStale func(symbol string, silence time.Duration)

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

// -----------------------------------------------------------------------------

// NewMonitor creates a Monitor. symbols and onStale are supplied by the
// streamer; clk is swappable for tests (clock.New() in production).
func NewMonitor(
	logger *logger.Logger,
	clk clock.Clock,
	checkInterval time.Duration,
	timeout time.Duration,
	symbols func() []string,
	onStale func(symbol string, silence time.Duration),
) *Monitor {
	return &Monitor{
		Name:          "HeartbeatMonitor",
		Logger:        logger,
		clock:         clk,
		checkInterval: checkInterval,
		timeout:       timeout,
		symbols:       symbols,
		onStale:       onStale,
		lastSeen:      make(map[string]time.Time),
	}
}

// -----------------------------------------------------------------------------
// PUBLIC METHODS
// -----------------------------------------------------------------------------

// Touch records a tick arrival for the symbol. Called from the normalizer
// path for every accepted tick record.
func (m *Monitor) Touch(symbol string) {
	now := m.clock.Now()
	m.mu.Lock()
	m.lastSeen[symbol] = now
	m.mu.Unlock()
}

// -----------------------------------------------------------------------------

// LastSeen returns a copy of the per-symbol last tick times.
func (m *Monitor) LastSeen() map[string]time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]time.Time, len(m.lastSeen))
	for symbol, ts := range m.lastSeen {
		seen[symbol] = ts
	}
	return seen
}

// -----------------------------------------------------------------------------

// Reset clears all last-seen state (disconnect / full reset).
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = make(map[string]time.Time)
}

// -----------------------------------------------------------------------------

// Run executes the check loop until the context is cancelled. It blocks and
// is meant to run on its own goroutine owned by the streamer worker.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.checkInterval)
	defer ticker.Stop()

	m.Logger.Info("%s : started (interval %s, timeout %s)", m.Name, m.checkInterval, m.timeout)
	for {
		select {
		case <-ctx.Done():
			m.Logger.Info("%s : stopped", m.Name)
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// check scans the subscribed symbols for silence beyond the timeout. The
// lock is held only to copy the map; the comparisons run on the copy so a
// sweep never blocks concurrent Touch or subscribe calls.
func (m *Monitor) check() {
	seen := m.LastSeen()
	now := m.clock.Now()

	var staleSymbol string
	var staleSilence time.Duration
	for _, symbol := range m.symbols() {
		ts, ok := seen[symbol]
		if !ok {
			// No tick yet: exempt until the first one arrives.
			continue
		}
		if silence := now.Sub(ts); silence > m.timeout && silence > staleSilence {
			staleSymbol = symbol
			staleSilence = silence
		}
	}

	if staleSymbol == "" {
		return
	}

	m.Logger.Warning("%s : no tick for %s in %s (timeout %s), requesting reconnect",
		m.Name, staleSymbol, staleSilence.Round(time.Second), m.timeout)
	if m.onStale != nil {
		m.onStale(staleSymbol, staleSilence)
	}
}
