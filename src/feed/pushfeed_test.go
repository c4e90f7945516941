package feed

import (
	"encoding/json"
	"testing"

	"market-streamer/src/logger"
	"market-streamer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *PushFeed {
	t.Helper()
	codec, err := NewPushFeed(&models.MFeedConfig{Protocol: "pushfeed", Endpoint: "wss://feed.test/ws"}, logger.NewLogger("error", "test"))
	require.NoError(t, err)
	return codec.(*PushFeed)
}

// request mirrors the feed's admin envelope for decoding in assertions.
type request struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	Parameters map[string]string `json:"parameters"`
}

type envelope struct {
	Requests []request `json:"requests"`
}

// -----------------------------------------------------------------------------

func TestRegistryResolvesPushFeed(t *testing.T) {
	constructor, err := GetConstructor("pushfeed")
	require.NoError(t, err)

	codec, err := constructor(&models.MFeedConfig{Protocol: "pushfeed"}, logger.NewLogger("error", "test"))
	require.NoError(t, err)
	assert.Equal(t, "pushfeed", codec.GetName())

	_, err = GetConstructor("carrier-pigeon")
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestAddSubscriptionWireShape(t *testing.T) {
	codec := newTestCodec(t)

	raw, err := codec.AddSubscription(models.CategoryQuote, []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Len(t, env.Requests, 1)

	req := env.Requests[0]
	assert.Equal(t, "LEVELONE_EQUITIES", req.Service)
	assert.Equal(t, "ADD", req.Command)
	assert.Equal(t, "AAPL,MSFT", req.Parameters["keys"])
	assert.NotEmpty(t, req.Parameters["fields"], "subscribe requests carry the field index list")
}

// -----------------------------------------------------------------------------

func TestAddSubscriptionOptionService(t *testing.T) {
	codec := newTestCodec(t)

	raw, err := codec.AddSubscription(models.CategoryOption, []string{"SPY 240119P00470000"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Len(t, env.Requests, 1)
	assert.Equal(t, "LEVELONE_OPTIONS", env.Requests[0].Service)
	assert.Equal(t, "SPY 240119P00470000", env.Requests[0].Parameters["keys"])
}

// -----------------------------------------------------------------------------

func TestRemoveSubscriptionWireShape(t *testing.T) {
	codec := newTestCodec(t)

	raw, err := codec.RemoveSubscription(models.CategoryQuote, []string{"AAPL"})
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Len(t, env.Requests, 1)

	req := env.Requests[0]
	assert.Equal(t, "UNSUBS", req.Command)
	assert.Equal(t, "AAPL", req.Parameters["keys"])
	_, hasFields := req.Parameters["fields"]
	assert.False(t, hasFields, "unsubscribe requests carry no field list")
}

// -----------------------------------------------------------------------------

func TestEmptySymbolListRejected(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.AddSubscription(models.CategoryQuote, nil)
	assert.Error(t, err)
	_, err = codec.RemoveSubscription(models.CategoryQuote, []string{})
	assert.Error(t, err)
}
