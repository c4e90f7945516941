package aggregator

import (
	"fmt"
	"testing"
	"time"

	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *logger.Logger {
	return logger.NewLogger("error", "test")
}

func tick(symbol string, seq int) *models.MTickRecord {
	return &models.MTickRecord{
		Symbol:    symbol,
		Category:  models.CategoryQuote,
		Timestamp: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC).Add(time.Duration(seq) * time.Millisecond),
		Fields:    map[string]float64{"lastPrice": float64(seq)},
	}
}

// -----------------------------------------------------------------------------

// Appending one past capacity evicts exactly the oldest record.
func TestFIFOEvictionAtCapacity(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 1000)

	for i := 0; i < 1001; i++ {
		agg.Append(tick("AAPL", i))
	}

	snap := agg.Snapshot([]string{"AAPL"})
	require.Len(t, snap["AAPL"], 1000, "buffer should hold exactly capacity records")

	assert.Equal(t, 1.0, snap["AAPL"][0].Field("lastPrice"), "oldest record (seq 0) should be evicted")
	assert.Equal(t, 1000.0, snap["AAPL"][999].Field("lastPrice"), "newest record should be last")
}

// -----------------------------------------------------------------------------

func TestSnapshotOrderingBeforeWrap(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 10)

	for i := 0; i < 7; i++ {
		agg.Append(tick("MSFT", i))
	}

	snap := agg.Snapshot([]string{"MSFT"})
	require.Len(t, snap["MSFT"], 7)
	for i, rec := range snap["MSFT"] {
		assert.Equal(t, float64(i), rec.Field("lastPrice"), "records should be oldest first")
	}
}

// -----------------------------------------------------------------------------

func TestSnapshotOrderingAfterWrap(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 5)

	for i := 0; i < 13; i++ {
		agg.Append(tick("SPY", i))
	}

	snap := agg.Snapshot([]string{"SPY"})
	require.Len(t, snap["SPY"], 5)
	for i, rec := range snap["SPY"] {
		assert.Equal(t, float64(8+i), rec.Field("lastPrice"), "wrapped buffer should still read oldest first")
	}
}

// -----------------------------------------------------------------------------

// A nil symbol list snapshots every buffered symbol; unknown symbols are
// omitted rather than returned empty.
func TestSnapshotSymbolSelection(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 10)
	agg.Append(tick("AAPL", 1))
	agg.Append(tick("MSFT", 2))

	all := agg.Snapshot(nil)
	assert.Len(t, all, 2, "nil selection should return every symbol")

	sel := agg.Snapshot([]string{"AAPL", "TSLA"})
	require.Len(t, sel, 1)
	assert.Contains(t, sel, "AAPL")
	assert.NotContains(t, sel, "TSLA", "never-seen symbol should be omitted")
}

// -----------------------------------------------------------------------------

// The returned slices are copies: mutating a snapshot must not affect what a
// later snapshot observes.
func TestSnapshotIsolation(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 10)
	agg.Append(tick("AAPL", 1))

	first := agg.Snapshot([]string{"AAPL"})
	first["AAPL"][0] = nil

	second := agg.Snapshot([]string{"AAPL"})
	require.NotNil(t, second["AAPL"][0], "snapshot mutation leaked into the buffer")
	assert.Equal(t, 1.0, second["AAPL"][0].Field("lastPrice"))
}

// -----------------------------------------------------------------------------

func TestDepthsAndClear(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 3)
	for i := 0; i < 5; i++ {
		agg.Append(tick("AAPL", i))
	}
	agg.Append(tick("MSFT", 0))

	depths := agg.Depths()
	assert.Equal(t, 3, depths["AAPL"], "depth should be capped at capacity")
	assert.Equal(t, 1, depths["MSFT"])

	agg.Clear()
	assert.Empty(t, agg.Depths())
	assert.Empty(t, agg.Snapshot(nil))
}

// -----------------------------------------------------------------------------

// Concurrent appenders and snapshotters must not race or corrupt ordering.
func TestConcurrentAppendAndSnapshot(t *testing.T) {
	agg := NewAggregator(newTestLogger(), 100)

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			symbol := fmt.Sprintf("SYM%d", g)
			for i := 0; i < 500; i++ {
				agg.Append(tick(symbol, i))
			}
		}(g)
	}

	for i := 0; i < 200; i++ {
		agg.Snapshot(nil)
		agg.Depths()
	}
	for g := 0; g < 4; g++ {
		<-done
	}

	depths := agg.Depths()
	for g := 0; g < 4; g++ {
		assert.Equal(t, 100, depths[fmt.Sprintf("SYM%d", g)])
	}
}
