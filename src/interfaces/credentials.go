package interfaces

// -----------------------------------------------------------------------------

// ICredentialSource is the contract with the authentication collaborator.
// The streamer asks it for the feed endpoint and a fresh access token before
// every connection attempt, so token refresh stays the collaborator's problem.
type ICredentialSource interface {
	// Endpoint returns the streaming endpoint URL.
	Endpoint() string

	// Token returns a valid access token. An error here is an auth failure:
	// fatal to the current connection attempt and surfaced to the caller of
	// Start / SetCredentials, never silently retried forever.
	Token() (string, error)
}
