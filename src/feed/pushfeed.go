package feed

import (
	"fmt"
	"strings"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/serializers"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// PushFeed implements interfaces.IFeedCodec for the brokerage push feed.
// Requests follow the feed's admin envelope: a "requests" list of
// {service, command, parameters{keys}} objects.
type PushFeed struct {
	Name       string
	Logger     *logger.Logger
	Config     *models.MFeedConfig
	Serializer interfaces.ISerializer
}

// Commands understood by the feed.
const (
	commandAdd   = "ADD"
	commandUnsub = "UNSUBS"
)

// Level-one field index lists requested per category. The feed sends only
// subscribed field indices; these cover the fields the normalizer knows.
const (
	quoteFieldIndices  = "0,1,2,3,4,5,6,7,8"
	optionFieldIndices = "0,1,2,3,4,5,6,7,8,9,10,11,12"
)

// -----------------------------------------------------------------------------
// CONSTRUCTOR AND REGISTRATION
// -----------------------------------------------------------------------------

func init() {
	// Register the codec with the name "pushfeed" for dynamic creation
	if err := Register("pushfeed", NewPushFeed); err != nil {
		fmt.Printf("Error registering pushfeed codec: %v\n", err)
	}
}

// -----------------------------------------------------------------------------

// NewPushFeed creates a new push feed codec instance.
// Matches the interfaces.IFeedCodecConstructor signature.
func NewPushFeed(config *models.MFeedConfig, logger *logger.Logger) (interfaces.IFeedCodec, error) {
	if config == nil {
		return nil, fmt.Errorf("feed config is required for pushfeed codec")
	}

	return &PushFeed{
		Name:       "pushfeed",
		Logger:     logger,
		Config:     config,
		Serializer: serializers.NewJSONSerializer(),
	}, nil
}

// -----------------------------------------------------------------------------
// IFeedCodec IMPLEMENTATION
// -----------------------------------------------------------------------------

// GetName returns the codec name
func (p *PushFeed) GetName() string {
	return p.Name
}

// -----------------------------------------------------------------------------

// ServiceName maps a category to the feed service identifier.
func (p *PushFeed) ServiceName(category models.MCategory) string {
	switch category {
	case models.CategoryOption:
		return "LEVELONE_OPTIONS"
	default:
		return "LEVELONE_EQUITIES"
	}
}

// -----------------------------------------------------------------------------

// AddSubscription creates the subscribe request for the symbols.
func (p *PushFeed) AddSubscription(category models.MCategory, symbols []string) ([]byte, error) {
	return p.buildRequest(commandAdd, category, symbols)
}

// -----------------------------------------------------------------------------

// RemoveSubscription creates the unsubscribe request for the symbols.
func (p *PushFeed) RemoveSubscription(category models.MCategory, symbols []string) ([]byte, error) {
	return p.buildRequest(commandUnsub, category, symbols)
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// buildRequest serializes one admin request envelope.
func (p *PushFeed) buildRequest(command string, category models.MCategory, symbols []string) ([]byte, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols for %s %s request", p.Name, command)
	}

	parameters := map[string]string{
		"keys": strings.Join(symbols, ","),
	}
	if command == commandAdd {
		parameters["fields"] = p.fieldIndices(category)
	}

	msg, err := p.Serializer.Marshal(map[string]interface{}{
		"requests": []map[string]interface{}{
			{
				"service":    p.ServiceName(category),
				"command":    command,
				"parameters": parameters,
			},
		},
	})
	if err != nil {
		p.Logger.Error("%s : failed to serialize %s request for symbols %v: %v", p.Name, command, symbols, err)
		return nil, fmt.Errorf("failed to serialize %s request: %w", command, err)
	}

	return msg, nil
}

// -----------------------------------------------------------------------------

func (p *PushFeed) fieldIndices(category models.MCategory) string {
	if category == models.CategoryOption {
		return optionFieldIndices
	}
	return quoteFieldIndices
}
