package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"market-streamer/src/logger"
	"market-streamer/src/models"
	"market-streamer/src/utils"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// Normalizer converts heterogeneous feed envelopes into canonical tick
// records. A single malformed item never aborts its siblings; item-level
// problems are logged and the item dropped.
type Normalizer struct {
	Name    string
	Logger  *logger.Logger
	aliases map[string][]string

	// onHeartbeat is invoked with the connection id carried by feed "notify"
	// heartbeat envelopes. Optional.
	onHeartbeat func(connectionID string)

	// now is swappable for tests
	now func() time.Time
}

// -----------------------------------------------------------------------------

// NewNormalizer creates a Normalizer. aliasOverrides entries replace the
// default alias list for their canonical field; pass nil for defaults.
func NewNormalizer(logger *logger.Logger, aliasOverrides map[string][]string) *Normalizer {
	return &Normalizer{
		Name:    "Normalizer",
		Logger:  logger,
		aliases: mergeAliases(aliasOverrides),
		now:     time.Now,
	}
}

// -----------------------------------------------------------------------------

// SetHeartbeatHook installs the callback for feed-level heartbeat
// notifications.
func (n *Normalizer) SetHeartbeatHook(fn func(connectionID string)) {
	n.onHeartbeat = fn
}

// -----------------------------------------------------------------------------
// NORMALIZATION
// -----------------------------------------------------------------------------

// Normalize parses one raw feed message into zero or more tick records.
// The returned error covers only an unparseable envelope; unknown shapes and
// bad items are logged and skipped without error so the receive loop keeps
// going.
func (n *Normalizer) Normalize(raw []byte) ([]*models.MTickRecord, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed message: %w", err)
	}

	// Heartbeat notifications carry liveness, not ticks.
	if notify, ok := envelope["notify"].([]interface{}); ok {
		n.handleNotify(notify)
		return nil, nil
	}

	items := n.extractItems(envelope)
	if items == nil {
		n.Logger.Debug("%s : ignoring message with unrecognized top-level shape (raw: %s)", n.Name, string(raw))
		return nil, nil
	}

	ticks := make([]*models.MTickRecord, 0, len(items))
	for _, rawItem := range items {
		item, ok := rawItem.(map[string]interface{})
		if !ok {
			n.Logger.Warning("%s : dropping non-object item in feed batch", n.Name)
			continue
		}

		tick := n.normalizeItem(item)
		if tick != nil {
			ticks = append(ticks, tick)
		}
	}

	return ticks, nil
}

// -----------------------------------------------------------------------------
// PRIVATE METHODS
// -----------------------------------------------------------------------------

// extractItems returns the item list of a recognized envelope, nil otherwise.
// The feed alternates between "data" and "content" as the list key.
func (n *Normalizer) extractItems(envelope map[string]interface{}) []interface{} {
	if items, ok := envelope["data"].([]interface{}); ok {
		return items
	}
	if items, ok := envelope["content"].([]interface{}); ok {
		return items
	}
	return nil
}

// -----------------------------------------------------------------------------

// normalizeItem converts one envelope item into a tick record, nil when the
// item must be dropped.
func (n *Normalizer) normalizeItem(item map[string]interface{}) *models.MTickRecord {
	service, ok := item["service"].(string)
	if !ok || service == "" {
		n.Logger.Warning("%s : dropping item without service discriminator", n.Name)
		return nil
	}

	category, ok := n.categoryFromService(service)
	if !ok {
		n.Logger.Warning("%s : dropping item with unknown service '%s'", n.Name, service)
		return nil
	}

	symbol := n.resolveText(item, "symbol")
	if symbol == "" {
		n.Logger.Warning("%s : dropping %s item without symbol", n.Name, service)
		return nil
	}

	tick := &models.MTickRecord{
		Symbol:    strings.ToUpper(symbol),
		Category:  category,
		Timestamp: n.now(),
		Fields:    make(map[string]float64, len(numericSchema(category))),
		Texts:     make(map[string]string, len(textSchema(category))),
	}

	// Schema-stable extraction: every known field is present, defaults when
	// no alias matches.
	for _, field := range numericSchema(category) {
		tick.Fields[field] = n.resolveNumeric(item, field)
	}
	for _, field := range textSchema(category) {
		tick.Texts[field] = n.resolveText(item, field)
	}

	if category == models.CategoryOption {
		tick.Underlying = n.resolveUnderlying(item, tick.Symbol)
	}

	return tick
}

// -----------------------------------------------------------------------------

// categoryFromService maps the service discriminator to a tick category by
// substring, since the feed uses both short ("QUOTE") and long
// ("LEVELONE_EQUITIES") service names.
func (n *Normalizer) categoryFromService(service string) (models.MCategory, bool) {
	upper := strings.ToUpper(service)
	switch {
	case strings.Contains(upper, "OPTION"):
		return models.CategoryOption, true
	case strings.Contains(upper, "QUOTE"), strings.Contains(upper, "EQUIT"):
		return models.CategoryQuote, true
	default:
		return "", false
	}
}

// -----------------------------------------------------------------------------

// resolveNumeric tries each alias of the canonical field in priority order;
// first present key wins, 0 when none match.
func (n *Normalizer) resolveNumeric(item map[string]interface{}, field string) float64 {
	for _, alias := range n.aliases[field] {
		raw, ok := item[alias]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v
		case string:
			return utils.ParseFloat(v)
		case json.Number:
			return utils.ParseFloat(v.String())
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0
}

// -----------------------------------------------------------------------------

// resolveText tries each alias of the canonical field in priority order;
// first present key wins, "" when none match.
func (n *Normalizer) resolveText(item map[string]interface{}, field string) string {
	for _, alias := range n.aliases[field] {
		if v, ok := item[alias].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// -----------------------------------------------------------------------------

// resolveUnderlying returns the underlying symbol for an option tick: an
// explicit field when present, otherwise the segment of the contract symbol
// preceding the first separator, otherwise the unresolved sentinel.
func (n *Normalizer) resolveUnderlying(item map[string]interface{}, optionSymbol string) string {
	if explicit := n.resolveText(item, "underlying"); explicit != "" {
		return strings.ToUpper(explicit)
	}

	if idx := strings.IndexFunc(optionSymbol, isSymbolSeparator); idx > 0 {
		return optionSymbol[:idx]
	}
	return models.UnresolvedUnderlying
}

// -----------------------------------------------------------------------------

func isSymbolSeparator(r rune) bool {
	switch r {
	case ' ', '_', '.', '-', '/':
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// handleNotify scans a notify list for heartbeat entries and reports them via
// the installed hook.
func (n *Normalizer) handleNotify(notify []interface{}) {
	for _, rawEntry := range notify {
		entry, ok := rawEntry.(map[string]interface{})
		if !ok {
			continue
		}
		hb, ok := entry["heartbeat"]
		if !ok {
			continue
		}

		id := fmt.Sprintf("%v", hb)
		n.Logger.Debug("%s : feed heartbeat received: %s", n.Name, id)
		if n.onHeartbeat != nil {
			n.onHeartbeat(id)
		}
	}
}
