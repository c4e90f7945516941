package streamer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-streamer/src/aggregator"
	"market-streamer/src/config"
	"market-streamer/src/feed"
	"market-streamer/src/heartbeat"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/normalizer"
	"market-streamer/src/registry"
	"market-streamer/src/subscriptions"
	"market-streamer/src/utils"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// -----------------------------------------------------------------------------

var (
	// ErrWorkerConflict means a previous worker refused to die; starting a
	// second one would violate the single-worker invariant, so Start refuses.
	ErrWorkerConflict = errors.New("streamer worker conflict: previous worker still alive")

	// ErrUncleanShutdown is the non-fatal condition reported when the worker
	// missed the join deadline during Stop.
	ErrUncleanShutdown = errors.New("streamer worker did not terminate cleanly")
)

// workerJoinTimeout bounds how long Stop waits for the worker to exit.
const workerJoinTimeout = 2 * time.Second

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// Streamer owns the one live feed connection and its one background worker,
// and wires normalizer, handler registry, aggregator, subscription manager
// and heartbeat monitor together. It is the composition root's single
// instance: construct it once with New and inject it where needed; there is
// no package-level state.
//
// All public methods are safe under concurrent invocation. The lifecycle
// mutex guards construction/teardown bookkeeping only and is never held
// across a network call.
type Streamer struct {
	Name   string
	Config *config.Config
	Logger *logger.Logger

	Registry      *registry.HandlerRegistry
	Aggregator    *aggregator.Aggregator
	Subscriptions *subscriptions.Manager
	Heartbeat     *heartbeat.Monitor
	Normalizer    *normalizer.Normalizer

	buildTransport TransportFactory

	state   int32 // models.MConnectionState, accessed atomically
	workers int32 // live worker count, must never exceed 1

	mu           sync.Mutex
	creds        interfaces.ICredentialSource
	transport    interfaces.ITransport
	cancel       context.CancelFunc
	workerDone   chan struct{}
	connectionID string // from feed heartbeat notifications
}

// -----------------------------------------------------------------------------

// New creates the streaming service instance. The feed codec named in the
// config is resolved from the feed registry; unknown protocols fail here.
func New(cfg *config.Config, log *logger.Logger, creds interfaces.ICredentialSource) (*Streamer, error) {
	constructor, err := feed.GetConstructor(cfg.Feed.Protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feed codec: %w", err)
	}
	codec, err := constructor(cfg.Feed, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed codec: %w", err)
	}

	s := &Streamer{
		Name:          "Streamer",
		Config:        cfg,
		Logger:        log,
		Registry:      registry.NewHandlerRegistry(log),
		Aggregator:    aggregator.NewAggregator(log, cfg.BufferCapacity),
		Subscriptions: subscriptions.NewManager(log),
		Normalizer:    normalizer.NewNormalizer(log, cfg.Aliases),
		creds:         creds,
		state:         int32(models.StateDisconnected),
	}

	s.Normalizer.SetHeartbeatHook(s.onFeedHeartbeat)
	s.Heartbeat = heartbeat.NewMonitor(
		log,
		clock.New(),
		cfg.HeartbeatCheckInterval(),
		cfg.HeartbeatTimeout(),
		s.Subscriptions.Symbols,
		s.onStaleSymbol,
	)
	s.buildTransport = DefaultTransportFactory(cfg, codec, log)

	return s, nil
}

// -----------------------------------------------------------------------------

// SetTransportFactory replaces how connection attempts build their transport.
// Used to plug in an externally supplied feed client (see AdapterFactory)
// and by tests. Must be called before Start.
func (s *Streamer) SetTransportFactory(factory TransportFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildTransport = factory
}

// -----------------------------------------------------------------------------
// LIFECYCLE
// -----------------------------------------------------------------------------

// Start connects to the feed and spawns the one background worker that owns
// the receive loop. Idempotent: when already Connected or Connecting it is a
// no-op returning success. Credential and connect errors of the initial
// attempt are returned to the caller; later failures are handled by the
// reconnect machinery and only visible via State.
func (s *Streamer) Start() error {
	s.mu.Lock()
	switch s.stateLocked() {
	case models.StateConnected, models.StateConnecting, models.StateDegraded, models.StateReconnecting:
		s.mu.Unlock()
		return nil
	}

	// A previous worker must be fully joined before a new one may exist.
	if s.workerDone != nil {
		cancel, done := s.cancel, s.workerDone
		s.cancel, s.workerDone = nil, nil
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			s.Logger.Error("%s : refusing to start: previous worker still alive after %s", s.Name, workerJoinTimeout)
			return ErrWorkerConflict
		}
		s.mu.Lock()
	}
	if atomic.LoadInt32(&s.workers) != 0 {
		s.mu.Unlock()
		return ErrWorkerConflict
	}

	s.setState(models.StateConnecting)
	s.mu.Unlock()

	// Blocking connect outside the lock; concurrent Start calls observe
	// Connecting and return immediately.
	transport, err := s.connectOnce(context.Background())
	if err != nil {
		s.setStateUnlessStopped(models.StateDisconnected)
		return fmt.Errorf("failed to start streamer: %w", err)
	}

	if err := s.Subscriptions.Replay(transport); err != nil {
		transport.Disconnect()
		s.setStateUnlessStopped(models.StateDisconnected)
		return fmt.Errorf("failed to apply subscriptions on start: %w", err)
	}

	s.mu.Lock()
	if s.stateLocked() != models.StateConnecting {
		// Stopped while we were dialing.
		s.mu.Unlock()
		transport.Disconnect()
		return fmt.Errorf("start aborted: streamer was stopped during connect")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.transport = transport
	s.cancel = cancel
	s.workerDone = done
	s.mu.Unlock()

	go s.runWorker(ctx, done, transport)

	s.Logger.Info("%s : started, streaming from %s", s.Name, utils.MaskAPIKey(s.endpoint()))
	return nil
}

// -----------------------------------------------------------------------------

// Stop signals the worker to terminate, closes the transport, clears
// subscription and last-seen state, and joins the worker with a timeout.
// On timeout it reports ErrUncleanShutdown instead of blocking forever.
// Re-entrant: a second Stop is a no-op.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	cancel, done, transport := s.cancel, s.workerDone, s.transport
	s.cancel, s.workerDone, s.transport = nil, nil, nil
	alreadyStopped := s.stateLocked() == models.StateStopped && done == nil
	s.setState(models.StateStopped)
	s.mu.Unlock()

	if alreadyStopped {
		return nil
	}

	if cancel != nil {
		cancel()
	}
	if transport != nil {
		transport.Disconnect()
	}

	var joinErr error
	if done != nil {
		select {
		case <-done:
		case <-time.After(workerJoinTimeout):
			s.Logger.Warning("%s : worker did not terminate cleanly within %s", s.Name, workerJoinTimeout)
			joinErr = ErrUncleanShutdown
		}
	}

	s.Subscriptions.Reset()
	s.Heartbeat.Reset()

	s.Logger.Info("%s : stopped", s.Name)
	return joinErr
}

// -----------------------------------------------------------------------------

// SetCredentials swaps the credential source. When running, the streamer is
// stopped and restarted with the previous subscription set re-applied.
func (s *Streamer) SetCredentials(creds interfaces.ICredentialSource) error {
	s.mu.Lock()
	running := s.workerDone != nil
	s.mu.Unlock()

	previous := s.Subscriptions.Snapshot()

	if running {
		if err := s.Stop(); err != nil && !errors.Is(err, ErrUncleanShutdown) {
			return fmt.Errorf("failed to stop streamer for credential swap: %w", err)
		}
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	s.Logger.Info("%s : credential source replaced", s.Name)

	if !running {
		return nil
	}

	// Re-record the old set so the replay on Start picks it up.
	for _, sub := range previous {
		if err := s.Subscriptions.Subscribe(nil, []string{sub.Symbol}, []models.MCategory{sub.Category}); err != nil {
			return fmt.Errorf("failed to restore subscription %v: %w", sub, err)
		}
	}
	return s.Start()
}

// -----------------------------------------------------------------------------
// PUBLIC API (dashboard surface)
// -----------------------------------------------------------------------------

// Subscribe starts streaming the symbols for the categories (default Quote).
// Only the delta against the active set reaches the wire.
func (s *Streamer) Subscribe(symbols []string, categories []models.MCategory) error {
	if len(categories) == 0 {
		categories = []models.MCategory{models.CategoryQuote}
	}
	return s.Subscriptions.Subscribe(s.currentTransport(), symbols, categories)
}

// -----------------------------------------------------------------------------

// Unsubscribe stops streaming the symbols across all categories.
func (s *Streamer) Unsubscribe(symbols []string) error {
	return s.Subscriptions.Unsubscribe(s.currentTransport(), symbols)
}

// -----------------------------------------------------------------------------

// Register adds a tick callback for the category; see registry.Dispatch for
// the delivery contract.
func (s *Streamer) Register(category models.MCategory, callback registry.TickHandler) registry.THandle {
	return s.Registry.Register(category, callback)
}

// -----------------------------------------------------------------------------

// Unregister removes a previously registered callback.
func (s *Streamer) Unregister(handle registry.THandle) {
	s.Registry.Unregister(handle)
}

// -----------------------------------------------------------------------------

// Snapshot returns point-in-time copies of the symbols' tick buffers.
func (s *Streamer) Snapshot(symbols []string) map[string][]*models.MTickRecord {
	return s.Aggregator.Snapshot(symbols)
}

// -----------------------------------------------------------------------------

// State returns the current connection state.
func (s *Streamer) State() models.MConnectionState {
	return models.MConnectionState(atomic.LoadInt32(&s.state))
}

// -----------------------------------------------------------------------------

// Status assembles the runtime status for the status API.
func (s *Streamer) Status() *models.MStreamStatus {
	s.mu.Lock()
	connectionID := s.connectionID
	s.mu.Unlock()

	return &models.MStreamStatus{
		State:         s.State().String(),
		Endpoint:      utils.MaskAPIKey(s.endpoint()),
		ConnectionID:  connectionID,
		Subscriptions: s.Subscriptions.Snapshot(),
		LastSeen:      s.Heartbeat.LastSeen(),
		BufferedTicks: s.Aggregator.Depths(),
	}
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// runWorker is the one background worker. It owns the receive loop and all
// reconnection; nothing else dials or reads the transport.
func (s *Streamer) runWorker(ctx context.Context, done chan struct{}, transport interfaces.ITransport) {
	atomic.AddInt32(&s.workers, 1)
	defer func() {
		atomic.AddInt32(&s.workers, -1)
		close(done)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Heartbeat.Run(ctx)
	}()
	defer wg.Wait()

	current := transport
	for {
		if !s.setStateUnlessStopped(models.StateConnected) {
			current.Disconnect()
			s.Logger.Info("%s : worker terminated", s.Name)
			return
		}
		s.Logger.Info("%s : worker entering receive loop", s.Name)

		current.Receive(ctx) // blocks until cancellation or connection death

		if ctx.Err() != nil {
			s.Logger.Info("%s : worker terminated", s.Name)
			return
		}

		if !s.setStateUnlessStopped(models.StateReconnecting) {
			s.Logger.Info("%s : worker terminated", s.Name)
			return
		}
		next, err := s.reconnectLoop(ctx)
		if err != nil {
			s.Logger.Info("%s : worker terminated during reconnect", s.Name)
			return
		}
		current = next
	}
}

// -----------------------------------------------------------------------------

// reconnectLoop re-establishes the connection with capped, jittered
// exponential backoff and replays the full subscription set. It only returns
// an error when the context is cancelled.
func (s *Streamer) reconnectLoop(ctx context.Context) (interfaces.ITransport, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.Config.BackoffInitialDelay()
	policy.MaxInterval = s.Config.BackoffMaxDelay()
	policy.Multiplier = s.Config.Backoff.Multiplier
	policy.RandomizationFactor = s.Config.Backoff.Jitter
	policy.MaxElapsedTime = 0 // retry until cancelled
	policy.Reset()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		attempt++

		transport, err := s.connectOnce(ctx)
		if err == nil {
			if err = s.Subscriptions.Replay(transport); err == nil {
				if !s.swapTransport(transport) {
					// Stopped while the dial was in flight; the fresh
					// transport must not outlive the streamer.
					transport.Disconnect()
					return nil, context.Canceled
				}
				s.Heartbeat.Reset()
				s.Logger.Info("%s : reconnected after %d attempt(s)", s.Name, attempt)
				return transport, nil
			}
			transport.Disconnect()
		}

		wait := policy.NextBackOff()
		s.Logger.Warning("%s : reconnect attempt %d failed: %v (next attempt in %s)", s.Name, attempt, err, wait.Round(time.Millisecond))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// -----------------------------------------------------------------------------

// connectOnce performs a single bounded connection attempt.
func (s *Streamer) connectOnce(ctx context.Context) (interfaces.ITransport, error) {
	attemptCtx, cancelAttempt := context.WithTimeout(ctx, s.Config.AttemptTimeout())
	defer cancelAttempt()

	transport, err := s.buildTransport(s.credentials(), s.onRawMessage)
	if err != nil {
		return nil, err
	}
	if err := transport.Connect(attemptCtx); err != nil {
		return nil, err
	}
	return transport, nil
}

// -----------------------------------------------------------------------------

// onRawMessage is the single entry point for raw feed messages: normalize,
// touch the heartbeat, fan out, buffer. Runs on the worker.
func (s *Streamer) onRawMessage(raw []byte) {
	ticks, err := s.Normalizer.Normalize(raw)
	if err != nil {
		s.Logger.Error("%s : dropping unparseable message: %v", s.Name, err)
		return
	}

	for _, tick := range ticks {
		s.Heartbeat.Touch(tick.Symbol)
		s.Registry.Dispatch(tick)
		s.Aggregator.Append(tick)
	}
}

// -----------------------------------------------------------------------------

// onStaleSymbol is the heartbeat monitor's reconnect request: mark the
// connection degraded and kill the transport. The worker's receive loop
// unblocks and drives the actual reconnect, so there is exactly one place
// where reconnection happens.
func (s *Streamer) onStaleSymbol(symbol string, silence time.Duration) {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	if transport == nil || s.State() != models.StateConnected {
		return
	}

	s.Logger.Warning("%s : connection degraded (%s silent for %s), forcing reconnect", s.Name, symbol, silence.Round(time.Second))
	s.setStateUnlessStopped(models.StateDegraded)
	transport.Disconnect()
}

// -----------------------------------------------------------------------------

// onFeedHeartbeat records the connection id carried by feed notify messages.
func (s *Streamer) onFeedHeartbeat(connectionID string) {
	s.mu.Lock()
	s.connectionID = connectionID
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (s *Streamer) setState(state models.MConnectionState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// setStateUnlessStopped transitions the state unless Stop has already
// published STOPPED. A stopped streamer's state is final until the next
// Start, so the worker never overwrites it while winding down.
func (s *Streamer) setStateUnlessStopped(state models.MConnectionState) bool {
	for {
		old := atomic.LoadInt32(&s.state)
		if models.MConnectionState(old) == models.StateStopped {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.state, old, int32(state)) {
			return true
		}
	}
}

func (s *Streamer) stateLocked() models.MConnectionState {
	return models.MConnectionState(atomic.LoadInt32(&s.state))
}

// -----------------------------------------------------------------------------

func (s *Streamer) currentTransport() interfaces.ITransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// -----------------------------------------------------------------------------

// swapTransport publishes the fresh transport after a reconnect. It refuses
// once the streamer is stopped so a dial that completes after Stop cannot
// repopulate the field Stop just cleared; Stop holds the same lock when it
// publishes STOPPED, so either the swap lands first (and Stop closes the new
// transport) or the caller keeps ownership and must close it.
func (s *Streamer) swapTransport(transport interfaces.ITransport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() == models.StateStopped {
		return false
	}
	s.transport = transport
	return true
}

// -----------------------------------------------------------------------------

func (s *Streamer) credentials() interfaces.ICredentialSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// -----------------------------------------------------------------------------

func (s *Streamer) endpoint() string {
	creds := s.credentials()
	if creds != nil && creds.Endpoint() != "" {
		return creds.Endpoint()
	}
	return s.Config.Feed.Endpoint
}
