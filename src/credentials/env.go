package credentials

import (
	"fmt"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

// tokenEnvVar holds the feed access token for the environment-backed source.
const tokenEnvVar = "FEED_ACCESS_TOKEN"

// EnvSource is an ICredentialSource reading the access token from the
// environment on every call, so an externally refreshed token is picked up on
// the next reconnect without restarting the process.
type EnvSource struct {
	endpoint string
}

// -----------------------------------------------------------------------------

// NewEnvSource creates an environment-backed credential source. endpoint may
// be empty to defer to the configured feed endpoint.
func NewEnvSource(endpoint string) *EnvSource {
	return &EnvSource{endpoint: endpoint}
}

// -----------------------------------------------------------------------------

// Endpoint returns the feed endpoint, empty when the config should decide.
func (e *EnvSource) Endpoint() string {
	return e.endpoint
}

// -----------------------------------------------------------------------------

// Token returns the current access token from the environment.
func (e *EnvSource) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(tokenEnvVar))
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty or unset", tokenEnvVar)
	}
	return token, nil
}

// -----------------------------------------------------------------------------

// StaticSource is an ICredentialSource with a fixed endpoint and token, used
// when a collaborator hands over ready-made credentials.
type StaticSource struct {
	endpoint string
	token    string
}

// -----------------------------------------------------------------------------

// NewStaticSource creates a fixed credential source.
func NewStaticSource(endpoint string, token string) *StaticSource {
	return &StaticSource{endpoint: endpoint, token: token}
}

func (s *StaticSource) Endpoint() string { return s.endpoint }

func (s *StaticSource) Token() (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("static credential source has no token")
	}
	return s.token, nil
}
