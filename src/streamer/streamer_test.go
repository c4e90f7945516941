package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"market-streamer/src/config"
	"market-streamer/src/credentials"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{MConfig: &models.MConfig{
		Name:     "test",
		LogLevel: "error",
		Feed: &models.MFeedConfig{
			Protocol:                "pushfeed",
			Endpoint:                "wss://feed.test/ws",
			HandshakeTimeoutSeconds: 1,
			AttemptTimeoutSeconds:   1,
			ReceiveBuffer:           10,
		},
		Heartbeat:      models.MHeartbeatConfig{CheckIntervalSeconds: 1, TimeoutSeconds: 60},
		Backoff:        models.MBackoffConfig{InitialDelaySeconds: 1, MaxDelaySeconds: 1, Multiplier: 1.0, Jitter: 0},
		BufferCapacity: 10,
	}}
}

func newTestLogger() *logger.Logger {
	return logger.NewLogger("error", "test")
}

// -----------------------------------------------------------------------------
// fakeTransport: Receive blocks until cancellation or Disconnect
// -----------------------------------------------------------------------------

type fakeTransport struct {
	mu          sync.Mutex
	running     bool
	dead        chan struct{}
	subCalls    map[models.MCategory][]string
	connectGate chan struct{} // when set, Connect blocks until it is closed
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		dead:     make(chan struct{}),
		subCalls: make(map[models.MCategory][]string),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	// The gate deliberately ignores ctx: it models a dial whose handshake
	// completes after the caller has already given up on it.
	if f.connectGate != nil {
		<-f.connectGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	f.running = false
	close(f.dead)
	return nil
}

func (f *fakeTransport) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTransport) GetName() string { return "fake" }
func (f *fakeTransport) GetType() string { return "fake" }

func (f *fakeTransport) Subscribe(category models.MCategory, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls[category] = append(f.subCalls[category], symbols...)
	return nil
}

func (f *fakeTransport) Unsubscribe(category models.MCategory, symbols []string) error {
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) {
	select {
	case <-ctx.Done():
		f.Disconnect()
	case <-f.dead:
	}
}

func (f *fakeTransport) subscribed(category models.MCategory) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subCalls[category]...)
}

// -----------------------------------------------------------------------------
// fakeFactory counts builds and exposes the transports it produced
// -----------------------------------------------------------------------------

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
	credsSeen  []interfaces.ICredentialSource
	lastOnRaw  func([]byte)
	failNext   int
	dialGate   chan struct{} // when set, built transports block in Connect
}

func (f *fakeFactory) build(creds interfaces.ICredentialSource, onRawData func([]byte)) (interfaces.ITransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("simulated connect refusal")
	}
	transport := newFakeTransport()
	transport.connectGate = f.dialGate
	f.transports = append(f.transports, transport)
	f.credsSeen = append(f.credsSeen, creds)
	f.lastOnRaw = onRawData
	return transport, nil
}

func (f *fakeFactory) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

func (f *fakeFactory) transportAt(i int) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[i]
}

func (f *fakeFactory) onRaw() func([]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOnRaw
}

// -----------------------------------------------------------------------------

func newTestStreamer(t *testing.T) (*Streamer, *fakeFactory) {
	t.Helper()
	s, err := New(testConfig(), newTestLogger(), credentials.NewStaticSource("wss://feed.test/ws", "token"))
	require.NoError(t, err)

	factory := &fakeFactory{}
	s.SetTransportFactory(factory.build)
	return s, factory
}

func waitForState(t *testing.T, s *Streamer, want models.MConnectionState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		5*time.Second, 10*time.Millisecond, "state never reached %s (got %s)", want, s.State())
}

// -----------------------------------------------------------------------------

func TestStartIdempotent(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)
	require.NoError(t, s.Start(), "second Start should be a no-op")

	assert.Equal(t, 1, factory.buildCount(), "redundant Start must not dial again")
}

// -----------------------------------------------------------------------------

// Many racing Start calls produce exactly one connection and one worker.
func TestConcurrentStartSingleWorker(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Start()
		}()
	}
	wg.Wait()
	waitForState(t, s, models.StateConnected)

	assert.Equal(t, 1, factory.buildCount(), "concurrent Start calls must share one transport")
}

// -----------------------------------------------------------------------------

func TestStopJoinsWorkerAndClearsState(t *testing.T) {
	s, factory := newTestStreamer(t)

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	require.NoError(t, s.Stop(), "worker should join within the deadline")
	assert.Equal(t, models.StateStopped, s.State())
	assert.False(t, factory.transportAt(0).IsRunning(), "transport should be closed")
	assert.Zero(t, s.Subscriptions.Count(), "Stop clears the subscription set")
	assert.Empty(t, s.Heartbeat.LastSeen())

	require.NoError(t, s.Stop(), "repeated Stop is a no-op")
}

// -----------------------------------------------------------------------------

// Subscriptions made while disconnected are recorded and replayed when the
// connection comes up.
func TestPendingSubscriptionsReplayOnStart(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Subscribe([]string{"AAPL", "MSFT"}, nil))
	require.NoError(t, s.Subscribe([]string{"SPY 240119P00470000"}, []models.MCategory{models.CategoryOption}))

	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	transport := factory.transportAt(0)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, transport.subscribed(models.CategoryQuote))
	assert.ElementsMatch(t, []string{"SPY 240119P00470000"}, transport.subscribed(models.CategoryOption))
}

// -----------------------------------------------------------------------------

// When the transport dies the worker reconnects with a fresh transport and
// replays the full subscription set against it.
func TestReconnectReplaysSubscriptions(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	// Simulate the connection dying underneath the worker.
	factory.transportAt(0).Disconnect()

	require.Eventually(t, func() bool { return factory.buildCount() == 2 },
		5*time.Second, 10*time.Millisecond, "worker never dialed a replacement transport")
	waitForState(t, s, models.StateConnected)

	assert.ElementsMatch(t, []string{"AAPL"}, factory.transportAt(1).subscribed(models.CategoryQuote),
		"subscriptions must be replayed on the fresh transport")
}

// -----------------------------------------------------------------------------

// Failed reconnect attempts are retried; Stop terminates the worker even while
// it is waiting out a backoff delay.
func TestStopDuringReconnectBackoff(t *testing.T) {
	s, factory := newTestStreamer(t)

	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	factory.mu.Lock()
	factory.failNext = 1 << 30 // every further attempt refuses
	factory.mu.Unlock()

	factory.transportAt(0).Disconnect()
	waitForState(t, s, models.StateReconnecting)

	require.NoError(t, s.Stop())
	assert.Equal(t, models.StateStopped, s.State())
}

// -----------------------------------------------------------------------------

// A reconnect dial that completes after Stop must not resurrect the streamer:
// STOPPED stays the final state and the late transport is closed again.
func TestStopWinsOverLateReconnectDial(t *testing.T) {
	s, factory := newTestStreamer(t)

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	// The replacement dial hangs until released.
	gate := make(chan struct{})
	factory.mu.Lock()
	factory.dialGate = gate
	factory.mu.Unlock()

	factory.transportAt(0).Disconnect()
	require.Eventually(t, func() bool { return factory.buildCount() == 2 },
		5*time.Second, 10*time.Millisecond, "worker never dialed a replacement transport")

	stopErr := make(chan error, 1)
	go func() { stopErr <- s.Stop() }()
	waitForState(t, s, models.StateStopped)

	// Release the dial only now, after STOPPED has been published.
	close(gate)

	require.NoError(t, <-stopErr, "worker should still join cleanly")
	assert.Equal(t, models.StateStopped, s.State(), "late dial must not overwrite the stopped state")
	assert.False(t, factory.transportAt(1).IsRunning(), "late transport must be closed, not adopted")
}

// -----------------------------------------------------------------------------

// A raw feed message flows through normalizer, heartbeat, registry and
// aggregator.
func TestRawMessagePipeline(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	var mu sync.Mutex
	var dispatched []string
	s.Register(models.CategoryQuote, func(tick *models.MTickRecord) {
		mu.Lock()
		dispatched = append(dispatched, tick.Symbol)
		mu.Unlock()
	})

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	factory.onRaw()([]byte(`{"data":[{"service":"QUOTE","key":"AAPL","lastPrice":187.25}]}`))

	mu.Lock()
	assert.Equal(t, []string{"AAPL"}, dispatched)
	mu.Unlock()

	snap := s.Snapshot([]string{"AAPL"})
	require.Len(t, snap["AAPL"], 1)
	assert.Equal(t, 187.25, snap["AAPL"][0].Field("lastPrice"))
	assert.Contains(t, s.Heartbeat.LastSeen(), "AAPL")
}

// -----------------------------------------------------------------------------

// Swapping credentials restarts the stream and carries the subscription set
// over to the new session.
func TestSetCredentialsRestartsWithSubscriptions(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	fresh := credentials.NewStaticSource("wss://feed.test/ws", "fresh-token")
	require.NoError(t, s.SetCredentials(fresh))
	waitForState(t, s, models.StateConnected)

	require.Equal(t, 2, factory.buildCount())
	factory.mu.Lock()
	lastCreds := factory.credsSeen[len(factory.credsSeen)-1]
	factory.mu.Unlock()
	assert.Same(t, fresh, lastCreds, "new session must use the new credential source")

	assert.ElementsMatch(t, []string{"AAPL"}, factory.transportAt(1).subscribed(models.CategoryQuote))
}

// -----------------------------------------------------------------------------

// Status reflects the live state of all collaborators.
func TestStatus(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	factory.onRaw()([]byte(`{"notify":[{"heartbeat":"1706000000123"}]}`))
	factory.onRaw()([]byte(`{"data":[{"service":"QUOTE","key":"AAPL","lastPrice":1.0}]}`))

	status := s.Status()
	assert.Equal(t, "CONNECTED", status.State)
	assert.Equal(t, "1706000000123", status.ConnectionID)
	require.Len(t, status.Subscriptions, 1)
	assert.Equal(t, "AAPL", status.Subscriptions[0].Symbol)
	assert.Equal(t, 1, status.BufferedTicks["AAPL"])
	assert.Contains(t, status.LastSeen, "AAPL")
}

// -----------------------------------------------------------------------------

// A degraded connection (stale symbol) kills the transport so the worker
// reconnects; there is no second reconnect path.
func TestStaleSymbolForcesReconnect(t *testing.T) {
	s, factory := newTestStreamer(t)
	defer s.Stop()

	require.NoError(t, s.Subscribe([]string{"AAPL"}, nil))
	require.NoError(t, s.Start())
	waitForState(t, s, models.StateConnected)

	// Drive the staleness reaction directly rather than waiting out the
	// monitor's real-clock timeout.
	s.onStaleSymbol("AAPL", 61*time.Second)

	require.Eventually(t, func() bool { return factory.buildCount() == 2 },
		5*time.Second, 10*time.Millisecond, "staleness should force a reconnect")
	waitForState(t, s, models.StateConnected)
}

// -----------------------------------------------------------------------------

// An unknown feed protocol fails construction, not first use.
func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := testConfig()
	cfg.Feed.Protocol = "smoke-signals"

	_, err := New(cfg, newTestLogger(), credentials.NewStaticSource("", "token"))
	require.Error(t, err)
	assert.Contains(t, fmt.Sprint(err), "smoke-signals")
}
