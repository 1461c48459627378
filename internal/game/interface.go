package game

// MapType identifies a map a lobby can be played on
type MapType string

const (
	MapRift       MapType = "rift"
	MapARAM       MapType = "aram"
	MapARAMMayhem MapType = "aram_mayhem"
)

// Selection is what a player picked when joining a lobby
type Selection struct {
	Roles []string // ranked role preferences, first is primary
	Tier  string
}

// Mode defines the interface every playable map must implement.
// Role-based maps ask joining players for two ranked roles and a tier;
// other maps let players join with a single click.
type Mode interface {
	// Name returns the human-readable name of the map
	Name() string

	// Type returns the map identifier stored with the lobby
	Type() MapType

	// Description returns a brief description of the map
	Description() string

	// RoleBased reports whether joining requires role and tier selection
	RoleBased() bool

	// Roles returns the selectable roles, empty for non role-based maps
	Roles() []string

	// Tiers returns the selectable skill tiers, empty for non role-based maps
	Tiers() []string

	// ValidateSelection checks a join selection.
	// Returns an error with a helpful message if invalid
	ValidateSelection(sel Selection) error
}
