package streamer

import (
	"fmt"
	"net/http"

	"market-streamer/src/config"
	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/transports"
)

// -----------------------------------------------------------------------------

// TransportFactory builds a fresh transport for one connection attempt. The
// streamer calls it before every dial so each attempt carries a current
// access token.
type TransportFactory func(creds interfaces.ICredentialSource, onRawData func([]byte)) (interfaces.ITransport, error)

// -----------------------------------------------------------------------------

// DefaultTransportFactory returns the production factory: a Gorilla WebSocket
// transport speaking the configured feed codec, authenticated with a bearer
// token from the credential source.
func DefaultTransportFactory(cfg *config.Config, codec interfaces.IFeedCodec, log *logger.Logger) TransportFactory {
	return func(creds interfaces.ICredentialSource, onRawData func([]byte)) (interfaces.ITransport, error) {
		token, err := creds.Token()
		if err != nil {
			// Auth failure: fatal to this attempt, surfaced to the caller.
			return nil, fmt.Errorf("credential source rejected token request: %w", err)
		}

		endpoint := creds.Endpoint()
		if endpoint == "" {
			endpoint = cfg.Feed.Endpoint
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		return transports.NewWebSocketTransport(
			"FeedTransport",
			endpoint,
			header,
			cfg.HandshakeTimeout(),
			codec,
			log,
			onRawData,
		), nil
	}
}

// -----------------------------------------------------------------------------

// AdapterFactory returns a factory that wraps an externally supplied feed
// client handle via the one-time capability probe in transports.NewAdapter.
// Used when the auth collaborator hands over a ready-made client instead of
// endpoint plus token.
func AdapterFactory(handle interface{}, log *logger.Logger) TransportFactory {
	return func(_ interfaces.ICredentialSource, onRawData func([]byte)) (interfaces.ITransport, error) {
		return transports.NewAdapter(handle, onRawData, log)
	}
}
