package subscriptions

import (
	"fmt"
	"sort"
	"sync"

	"market-streamer/src/interfaces"
	"market-streamer/src/logger"
	"market-streamer/src/models"
)

// -----------------------------------------------------------------------------
// STRUCT DEFINITION
// -----------------------------------------------------------------------------

// Manager tracks the desired (symbol, category) subscription set and diffs it
// against what has been issued to the transport. One mutex serializes
// subscribe/unsubscribe calls against each other and against reconnection
// replay, transport sends included.
type Manager struct {
	Name   string
	Logger *logger.Logger

	mu     sync.Mutex
	active map[models.MSubscription]struct{}
}

// -----------------------------------------------------------------------------

// NewManager creates an empty subscription manager.
func NewManager(logger *logger.Logger) *Manager {
	return &Manager{
		Name:   "SubscriptionManager",
		Logger: logger,
		active: make(map[models.MSubscription]struct{}),
	}
}

// -----------------------------------------------------------------------------
// PUBLIC METHODS
// -----------------------------------------------------------------------------

// Subscribe records the union of the current set and (symbols x categories)
// and issues only the incremental additions to the transport. A nil or
// stopped transport just records; the set is replayed on the next connect.
func (m *Manager) Subscribe(t interfaces.ITransport, symbols []string, categories []models.MCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Set difference first: only additions reach the wire.
	added := make(map[models.MCategory][]string)
	for _, category := range categories {
		for _, symbol := range symbols {
			sub := models.MSubscription{Symbol: symbol, Category: category}
			if _, exists := m.active[sub]; exists {
				continue
			}
			m.active[sub] = struct{}{}
			added[category] = append(added[category], symbol)
		}
	}

	if len(added) == 0 {
		return nil // Everything requested is already subscribed
	}

	if t == nil || !t.IsRunning() {
		m.Logger.Info("%s : recorded %d pending subscription(s), transport not connected", m.Name, countSymbols(added))
		return nil
	}

	for category, newSymbols := range added {
		if err := t.Subscribe(category, newSymbols); err != nil {
			return fmt.Errorf("failed to subscribe %v (%s): %w", newSymbols, category, err)
		}
		m.Logger.Info("%s : subscribed %d symbol(s) for %s", m.Name, len(newSymbols), category)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe removes every category entry for the symbols and issues the
// corresponding removal calls. Removing a symbol that is not subscribed is a
// no-op, not an error.
func (m *Manager) Unsubscribe(t interfaces.ITransport, symbols []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[models.MCategory][]string)
	for _, symbol := range symbols {
		for sub := range m.active {
			if sub.Symbol == symbol {
				delete(m.active, sub)
				removed[sub.Category] = append(removed[sub.Category], symbol)
			}
		}
	}

	if len(removed) == 0 || t == nil || !t.IsRunning() {
		return nil
	}

	for category, goneSymbols := range removed {
		if err := t.Unsubscribe(category, goneSymbols); err != nil {
			return fmt.Errorf("failed to unsubscribe %v (%s): %w", goneSymbols, category, err)
		}
		m.Logger.Info("%s : unsubscribed %d symbol(s) for %s", m.Name, len(goneSymbols), category)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Replay re-issues the entire current subscription set against a fresh
// transport. Subscriptions do not survive a transport-level reconnect on
// their own.
func (m *Manager) Replay(t interfaces.ITransport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCategory := make(map[models.MCategory][]string)
	for sub := range m.active {
		byCategory[sub.Category] = append(byCategory[sub.Category], sub.Symbol)
	}

	for category, symbols := range byCategory {
		sort.Strings(symbols) // deterministic replay order
		if err := t.Subscribe(category, symbols); err != nil {
			return fmt.Errorf("failed to replay %d %s subscription(s): %w", len(symbols), category, err)
		}
		m.Logger.Info("%s : replayed %d %s subscription(s)", m.Name, len(symbols), category)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Snapshot returns the active subscriptions, sorted for stable output.
func (m *Manager) Snapshot() []models.MSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]models.MSubscription, 0, len(m.active))
	for sub := range m.active {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Symbol != subs[j].Symbol {
			return subs[i].Symbol < subs[j].Symbol
		}
		return subs[i].Category < subs[j].Category
	})
	return subs
}

// -----------------------------------------------------------------------------

// Symbols returns the distinct subscribed symbols.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	for sub := range m.active {
		seen[sub.Symbol] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------

// Count returns the number of active (symbol, category) pairs.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// -----------------------------------------------------------------------------

// Reset drops the whole subscription set (full disconnect).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[models.MSubscription]struct{})
}

// -----------------------------------------------------------------------------
// PRIVATE HELPERS
// -----------------------------------------------------------------------------

func countSymbols(byCategory map[models.MCategory][]string) int {
	total := 0
	for _, symbols := range byCategory {
		total += len(symbols)
	}
	return total
}
