package game

import (
	"fmt"
	"sync"
)

// Registry manages all registered maps in registration order
type Registry struct {
	mu    sync.RWMutex
	modes map[MapType]Mode
	order []MapType
}

// NewRegistry creates a new map registry
func NewRegistry() *Registry {
	return &Registry{
		modes: make(map[MapType]Mode),
	}
}

// Register adds a map to the registry. Registering the same type twice
// replaces the earlier mode but keeps its position.
func (r *Registry) Register(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modes[mode.Type()]; !ok {
		r.order = append(r.order, mode.Type())
	}
	r.modes[mode.Type()] = mode
}

// Get retrieves a map by type
func (r *Registry) Get(mapType MapType) (Mode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mode, ok := r.modes[mapType]
	if !ok {
		return nil, fmt.Errorf("unknown map: %s", mapType)
	}
	return mode, nil
}

// Name returns the display name of a map, or the raw key when unknown
func (r *Registry) Name(mapType MapType) string {
	mode, err := r.Get(mapType)
	if err != nil {
		return string(mapType)
	}
	return mode.Name()
}

// List returns information about all registered maps
func (r *Registry) List() []MapInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maps := make([]MapInfo, 0, len(r.order))
	for _, t := range r.order {
		mode := r.modes[t]
		maps = append(maps, MapInfo{
			Type:        mode.Type(),
			Name:        mode.Name(),
			Description: mode.Description(),
			RoleBased:   mode.RoleBased(),
		})
	}
	return maps
}

// MapInfo contains display information about a map
type MapInfo struct {
	Type        MapType
	Name        string
	Description string
	RoleBased   bool
}
