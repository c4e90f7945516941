package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"market-streamer/src/logger"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	return logger.NewLogger("error", "test")
}

// staleRecorder collects onStale invocations under a lock since the monitor
// calls it from its own goroutine.
type staleRecorder struct {
	mu      sync.Mutex
	symbols []string
}

func (r *staleRecorder) onStale(symbol string, silence time.Duration) {
	r.mu.Lock()
	r.symbols = append(r.symbols, symbol)
	r.mu.Unlock()
}

func (r *staleRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.symbols...)
}

// -----------------------------------------------------------------------------

// A symbol whose last tick is older than the timeout is reported within one
// check interval.
func TestStaleSymbolDetectedWithinOneInterval(t *testing.T) {
	mockClock := clock.NewMock()
	recorder := &staleRecorder{}
	symbols := func() []string { return []string{"AAPL"} }

	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second, symbols, recorder.onStale)
	m.Touch("AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let Run create its ticker

	// 60s of silence is exactly the timeout, not beyond it.
	mockClock.Add(60 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, recorder.seen(), "silence equal to the timeout is not yet stale")

	// One more interval pushes silence past the timeout.
	mockClock.Add(5 * time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Contains(t, recorder.seen(), "AAPL")
}

// -----------------------------------------------------------------------------

// A subscribed symbol that has never produced a tick is exempt from staleness.
func TestNeverSeenSymbolExempt(t *testing.T) {
	mockClock := clock.NewMock()
	recorder := &staleRecorder{}
	symbols := func() []string { return []string{"AAPL", "MSFT"} }

	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second, symbols, recorder.onStale)
	m.Touch("AAPL") // MSFT never ticks

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	mockClock.Add(120 * time.Second)
	time.Sleep(50 * time.Millisecond)

	seen := recorder.seen()
	assert.Contains(t, seen, "AAPL")
	assert.NotContains(t, seen, "MSFT", "never-seen symbol must not trigger staleness")
}

// -----------------------------------------------------------------------------

// A fresh tick keeps the symbol out of the stale set.
func TestTouchKeepsSymbolFresh(t *testing.T) {
	mockClock := clock.NewMock()
	recorder := &staleRecorder{}
	symbols := func() []string { return []string{"AAPL"} }

	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second, symbols, recorder.onStale)
	m.Touch("AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Keep touching every 30 mock seconds; silence never reaches the timeout.
	for i := 0; i < 6; i++ {
		mockClock.Add(30 * time.Second)
		m.Touch("AAPL")
		time.Sleep(20 * time.Millisecond)
	}

	assert.Empty(t, recorder.seen())
}

// -----------------------------------------------------------------------------

// One sweep reports a single symbol (the quietest), not one callback per
// stale symbol.
func TestSingleReportPerSweep(t *testing.T) {
	mockClock := clock.NewMock()
	recorder := &staleRecorder{}
	symbols := func() []string { return []string{"AAPL", "MSFT"} }

	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second, symbols, recorder.onStale)
	m.Touch("MSFT")
	mockClock.Add(10 * time.Second)
	m.Touch("AAPL") // MSFT is now the quieter of the two

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Advance to the first sweep where MSFT (but not yet AAPL) is stale:
	// MSFT has been silent 65s, AAPL only 55s.
	mockClock.Add(55 * time.Second)
	time.Sleep(50 * time.Millisecond)

	seen := recorder.seen()
	require.Len(t, seen, 1, "a sweep reports exactly one stale symbol")
	assert.Equal(t, "MSFT", seen[0], "the quietest symbol wins")
}

// -----------------------------------------------------------------------------

func TestLastSeenCopyAndReset(t *testing.T) {
	mockClock := clock.NewMock()
	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second,
		func() []string { return nil }, nil)

	m.Touch("AAPL")
	seen := m.LastSeen()
	require.Contains(t, seen, "AAPL")

	// Mutating the returned map must not affect the monitor.
	delete(seen, "AAPL")
	assert.Contains(t, m.LastSeen(), "AAPL")

	m.Reset()
	assert.Empty(t, m.LastSeen())
}

// -----------------------------------------------------------------------------

// Cancelling the context terminates Run.
func TestRunStopsOnCancel(t *testing.T) {
	mockClock := clock.NewMock()
	m := NewMonitor(newTestLogger(), mockClock, 5*time.Second, 60*time.Second,
		func() []string { return nil }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
