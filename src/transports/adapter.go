package transports

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------

// ErrUnsupportedTransport is returned when a feed client handle matches none
// of the known method sets.
var ErrUnsupportedTransport = errors.New("unsupported transport: no known method set matched")

// -----------------------------------------------------------------------------
// Known handle shapes, probed in order at connection setup. Feed client
// libraries have shipped several incompatible surfaces over time; instead of
// reflecting on method names per call, each shape is a small interface and a
// type assertion here, once.
// -----------------------------------------------------------------------------

// streamerStyleClient is the modern feed client: it owns its own receive loop
// and exposes per-category subscription methods.
type streamerStyleClient interface {
	Start(onMessage func(message []byte)) error
	AddQuoteSubscription(symbols []string) error
	AddOptionSubscription(symbols []string) error
	RemoveQuoteSubscription(symbols []string) error
	RemoveOptionSubscription(symbols []string) error
	Stop() error
}

// legacyStreamerClient is the older client surface with Subscribe/Unsubscribe
// naming.
type legacyStreamerClient interface {
	StartStream(onMessage func(message []byte)) error
	SubscribeQuotes(symbols []string) error
	SubscribeOptions(symbols []string) error
	UnsubscribeQuotes(symbols []string) error
	UnsubscribeOptions(symbols []string) error
	StopStream() error
}

// -----------------------------------------------------------------------------

// NewAdapter wraps a feed client handle into interfaces.ITransport. The
// ordered probe list: native ITransport, then the streamer-style client, then
// the legacy client. No match is an unsupported transport error, reported at
// setup rather than at first use.
func NewAdapter(handle interface{}, onRawData func([]byte), log *logger.Logger) (interfaces.ITransport, error) {
	switch client := handle.(type) {
	case interfaces.ITransport:
		return client, nil
	case streamerStyleClient:
		log.Info("TransportAdapter : wrapped streamer-style feed client")
		return &streamerAdapter{client: client, onRawData: onRawData}, nil
	case legacyStreamerClient:
		log.Info("TransportAdapter : wrapped legacy feed client")
		return &legacyAdapter{client: client, onRawData: onRawData}, nil
	default:
		return nil, fmt.Errorf("%w (handle type %T)", ErrUnsupportedTransport, handle)
	}
}

// -----------------------------------------------------------------------------
// streamerAdapter
// -----------------------------------------------------------------------------

type streamerAdapter struct {
	client    streamerStyleClient
	onRawData func([]byte)
	running   atomic.Bool
}

func (a *streamerAdapter) Connect(ctx context.Context) error {
	if err := a.client.Start(a.onRawData); err != nil {
		return fmt.Errorf("feed client start failed: %w", err)
	}
	a.running.Store(true)
	return nil
}

// Disconnect may race its own Receive teardown against an external caller;
// the swap guarantees the wrapped client is stopped exactly once.
func (a *streamerAdapter) Disconnect() error {
	if !a.running.CompareAndSwap(true, false) {
		return nil
	}
	return a.client.Stop()
}

func (a *streamerAdapter) IsRunning() bool { return a.running.Load() }
func (a *streamerAdapter) GetName() string { return "feed-client" }
func (a *streamerAdapter) GetType() string { return "streamer-client" }

func (a *streamerAdapter) Subscribe(category models.MCategory, symbols []string) error {
	if category == models.CategoryOption {
		return a.client.AddOptionSubscription(symbols)
	}
	return a.client.AddQuoteSubscription(symbols)
}

func (a *streamerAdapter) Unsubscribe(category models.MCategory, symbols []string) error {
	if category == models.CategoryOption {
		return a.client.RemoveOptionSubscription(symbols)
	}
	return a.client.RemoveQuoteSubscription(symbols)
}

// Receive blocks until cancellation; the wrapped client delivers messages on
// its own internal loop.
func (a *streamerAdapter) Receive(ctx context.Context) {
	<-ctx.Done()
	a.Disconnect()
}

// -----------------------------------------------------------------------------
// legacyAdapter
// -----------------------------------------------------------------------------

type legacyAdapter struct {
	client    legacyStreamerClient
	onRawData func([]byte)
	running   atomic.Bool
}

func (a *legacyAdapter) Connect(ctx context.Context) error {
	if err := a.client.StartStream(a.onRawData); err != nil {
		return fmt.Errorf("legacy feed client start failed: %w", err)
	}
	a.running.Store(true)
	return nil
}

func (a *legacyAdapter) Disconnect() error {
	if !a.running.CompareAndSwap(true, false) {
		return nil
	}
	return a.client.StopStream()
}

func (a *legacyAdapter) IsRunning() bool { return a.running.Load() }
func (a *legacyAdapter) GetName() string { return "feed-client" }
func (a *legacyAdapter) GetType() string { return "legacy-client" }

func (a *legacyAdapter) Subscribe(category models.MCategory, symbols []string) error {
	if category == models.CategoryOption {
		return a.client.SubscribeOptions(symbols)
	}
	return a.client.SubscribeQuotes(symbols)
}

func (a *legacyAdapter) Unsubscribe(category models.MCategory, symbols []string) error {
	if category == models.CategoryOption {
		return a.client.UnsubscribeOptions(symbols)
	}
	return a.client.UnsubscribeQuotes(symbols)
}

func (a *legacyAdapter) Receive(ctx context.Context) {
	<-ctx.Done()
	a.Disconnect()
}
