package transports

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
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

// -----------------------------------------------------------------------------
// fake feed clients covering the known method sets
// -----------------------------------------------------------------------------

type fakeStreamerClient struct {
	started bool
	stops   atomic.Int32
	quotes  []string
	options []string
}

func (c *fakeStreamerClient) Start(onMessage func(message []byte)) error { c.started = true; return nil }
func (c *fakeStreamerClient) Stop() error                               { c.stops.Add(1); return nil }

func (c *fakeStreamerClient) AddQuoteSubscription(symbols []string) error {
	c.quotes = append(c.quotes, symbols...)
	return nil
}

func (c *fakeStreamerClient) AddOptionSubscription(symbols []string) error {
	c.options = append(c.options, symbols...)
	return nil
}

func (c *fakeStreamerClient) RemoveQuoteSubscription(symbols []string) error  { return nil }
func (c *fakeStreamerClient) RemoveOptionSubscription(symbols []string) error { return nil }

type fakeLegacyClient struct {
	started bool
	stops   atomic.Int32
	quotes  []string
}

func (c *fakeLegacyClient) StartStream(onMessage func(message []byte)) error {
	c.started = true
	return nil
}
func (c *fakeLegacyClient) StopStream() error { c.stops.Add(1); return nil }

func (c *fakeLegacyClient) SubscribeQuotes(symbols []string) error {
	c.quotes = append(c.quotes, symbols...)
	return nil
}
func (c *fakeLegacyClient) SubscribeOptions(symbols []string) error   { return nil }
func (c *fakeLegacyClient) UnsubscribeQuotes(symbols []string) error  { return nil }
func (c *fakeLegacyClient) UnsubscribeOptions(symbols []string) error { return nil }

// -----------------------------------------------------------------------------

func TestAdapterWrapsStreamerStyleClient(t *testing.T) {
	client := &fakeStreamerClient{}
	transport, err := NewAdapter(client, func([]byte) {}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "streamer-client", transport.GetType())

	require.NoError(t, transport.Connect(context.Background()))
	assert.True(t, client.started)
	assert.True(t, transport.IsRunning())

	require.NoError(t, transport.Subscribe(models.CategoryQuote, []string{"AAPL"}))
	require.NoError(t, transport.Subscribe(models.CategoryOption, []string{"SPY 240119P00470000"}))
	assert.Equal(t, []string{"AAPL"}, client.quotes)
	assert.Equal(t, []string{"SPY 240119P00470000"}, client.options)

	require.NoError(t, transport.Disconnect())
	assert.Equal(t, int32(1), client.stops.Load())
	assert.False(t, transport.IsRunning())
}

// -----------------------------------------------------------------------------

func TestAdapterWrapsLegacyClient(t *testing.T) {
	client := &fakeLegacyClient{}
	transport, err := NewAdapter(client, func([]byte) {}, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, "legacy-client", transport.GetType())

	require.NoError(t, transport.Connect(context.Background()))
	assert.True(t, client.started)
	require.NoError(t, transport.Subscribe(models.CategoryQuote, []string{"MSFT"}))
	assert.Equal(t, []string{"MSFT"}, client.quotes)

	require.NoError(t, transport.Disconnect())
	assert.Equal(t, int32(1), client.stops.Load())
}

// -----------------------------------------------------------------------------

// A handle that already satisfies ITransport passes through unchanged.
func TestAdapterPassesThroughNativeTransport(t *testing.T) {
	native := NewWebSocketTransport("native", "wss://feed.test/ws", nil, time.Second, nil, newTestLogger(), func([]byte) {})

	transport, err := NewAdapter(native, func([]byte) {}, newTestLogger())
	require.NoError(t, err)
	assert.Same(t, native, transport)
}

// -----------------------------------------------------------------------------

// An unknown handle fails at setup with the sentinel, not at first use.
func TestAdapterRejectsUnknownHandle(t *testing.T) {
	_, err := NewAdapter(struct{ Connect func() }{}, func([]byte) {}, newTestLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedTransport))
}

// -----------------------------------------------------------------------------

// Receive blocks until cancellation and stops the wrapped client on the way
// out.
func TestAdapterReceiveStopsOnCancel(t *testing.T) {
	client := &fakeStreamerClient{}
	transport, err := NewAdapter(client, func([]byte) {}, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, transport.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		transport.Receive(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after cancellation")
	}
	assert.Equal(t, int32(1), client.stops.Load())
}

// -----------------------------------------------------------------------------

// Disconnect can race between the owning streamer's Stop and the adapter's
// own Receive teardown; the wrapped client must be stopped exactly once.
func TestAdapterConcurrentDisconnectStopsClientOnce(t *testing.T) {
	streamerClient := &fakeStreamerClient{}
	legacyClient := &fakeLegacyClient{}

	for _, handle := range []interface{}{streamerClient, legacyClient} {
		transport, err := NewAdapter(handle, func([]byte) {}, newTestLogger())
		require.NoError(t, err)
		require.NoError(t, transport.Connect(context.Background()))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				transport.Disconnect()
			}()
		}
		wg.Wait()
		assert.False(t, transport.IsRunning())
	}

	assert.Equal(t, int32(1), streamerClient.stops.Load())
	assert.Equal(t, int32(1), legacyClient.stops.Load())
}
