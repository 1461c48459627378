package lol

import (
	"fmt"
	"slices"

	"github.com/flor3z/scrim-bot/internal/game"
)

// Roles are the five Summoner's Rift positions
var Roles = []string{"Top", "Jungle", "Mid", "ADC", "Support"}

// Tiers are the ranked tiers a player can report, lowest first
var Tiers = []string{
	"Iron", "Bronze", "Silver", "Gold", "Platinum", "Emerald",
	"Diamond", "Master", "Master+300", "Grandmaster", "Challenger",
}

// Rift implements game.Mode for Summoner's Rift. Joining players pick a
// primary and secondary role and their tier.
type Rift struct{}

// NewRift creates the Summoner's Rift mode
func NewRift() *Rift {
	return &Rift{}
}

// Name returns the human-readable name of the map
func (m *Rift) Name() string {
	return "Summoner's Rift"
}

// Type returns the map identifier
func (m *Rift) Type() game.MapType {
	return game.MapRift
}

// Description returns a brief description of the map
func (m *Rift) Description() string {
	return "5v5 draft on Summoner's Rift. Players pick two roles and a tier when joining."
}

// RoleBased reports that Rift lobbies collect role and tier
func (m *Rift) RoleBased() bool {
	return true
}

// Roles returns the selectable positions
func (m *Rift) Roles() []string {
	return Roles
}

// Tiers returns the selectable tiers
func (m *Rift) Tiers() []string {
	return Tiers
}

// ValidateSelection requires two distinct known roles and a known tier
func (m *Rift) ValidateSelection(sel game.Selection) error {
	if sel.Tier == "" {
		return fmt.Errorf("pick your tier")
	}
	if !slices.Contains(Tiers, sel.Tier) {
		return fmt.Errorf("unknown tier: %s", sel.Tier)
	}
	if len(sel.Roles) != 2 {
		return fmt.Errorf("pick exactly two roles (primary and secondary)")
	}
	if sel.Roles[0] == sel.Roles[1] {
		return fmt.Errorf("primary and secondary role must differ")
	}
	for _, role := range sel.Roles {
		if !slices.Contains(Roles, role) {
			return fmt.Errorf("unknown role: %s", role)
		}
	}
	return nil
}

// ARAM implements game.Mode for the Howling Abyss maps. No role or tier is
// collected; a join is a single click.
type ARAM struct {
	mayhem bool
}

// NewARAM creates the classic ARAM mode
func NewARAM() *ARAM {
	return &ARAM{}
}

// NewARAMMayhem creates the ARAM: Mayhem mode
func NewARAMMayhem() *ARAM {
	return &ARAM{mayhem: true}
}

// Name returns the human-readable name of the map
func (m *ARAM) Name() string {
	if m.mayhem {
		return "ARAM: Mayhem"
	}
	return "ARAM"
}

// Type returns the map identifier
func (m *ARAM) Type() game.MapType {
	if m.mayhem {
		return game.MapARAMMayhem
	}
	return game.MapARAM
}

// Description returns a brief description of the map
func (m *ARAM) Description() string {
	if m.mayhem {
		return "All random, all mid with augments. Join with one click."
	}
	return "All random, all mid on the Howling Abyss. Join with one click."
}

func (m *ARAM) RoleBased() bool {
	return false
}

func (m *ARAM) Roles() []string {
	return nil
}

func (m *ARAM) Tiers() []string {
	return nil
}

// ValidateSelection rejects role or tier values, which ARAM lobbies never store
func (m *ARAM) ValidateSelection(sel game.Selection) error {
	if len(sel.Roles) > 0 || sel.Tier != "" {
		return fmt.Errorf("%s does not take role or tier preferences", m.Name())
	}
	return nil
}

// RegisterAll adds every League of Legends map to a registry
func RegisterAll(registry *game.Registry) {
	registry.Register(NewRift())
	registry.Register(NewARAM())
	registry.Register(NewARAMMayhem())
}
