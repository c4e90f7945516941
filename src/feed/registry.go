package feed

import (
	"fmt"
	"sync"

	"market-streamer/src/interfaces"
)

// The global registry map. Key is the protocol name (e.g. "pushfeed"), value
// is the constructor function.
var (
	registry = make(map[string]interfaces.IFeedCodecConstructor)
	mu       sync.RWMutex // Use a mutex for concurrent map access
)

// Register is called by each codec's init() function to add itself to the map.
func Register(name string, constructor interfaces.IFeedCodecConstructor) error {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		return fmt.Errorf("feed codec constructor already registered for name: %s", name)
	}
	registry[name] = constructor
	return nil
}

// GetConstructor is used at composition time to retrieve the constructor.
func GetConstructor(name string) (interfaces.IFeedCodecConstructor, error) {
	mu.RLock()
	defer mu.RUnlock()
	constructor, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown feed protocol: %s", name)
	}
	return constructor, nil
}
