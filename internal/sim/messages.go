package sim

import (
	"github.com/l1jgo/courier/internal/blueprint"
	"github.com/l1jgo/courier/internal/core/ecs"
)

// Tick is broadcast to every entity once per round.
type Tick struct {
	N uint64
}

// Damage is reduced by Armor and applied by Vitals. Lethal is set when the
// hit kills.
type Damage struct {
	Amount int
	Kind   string
	Source ecs.EntityID
	Lethal bool
}

// Heal restores HP up to MaxHP.
type Heal struct {
	Amount int
}

// Census asks one entity to describe itself.
type Census struct {
	HP, MaxHP  int
	Armor      int
	Poisoned   bool
	Breeding   bool
	TicksLeft  int
	Components int
}

// Population is the world-wide tally kept by Vitals lifecycle callbacks.
type Population struct {
	Alive int    `yaml:"alive"`
	Born  uint64 `yaml:"born"`
	Died  uint64 `yaml:"died"`
}

// Nursery gives Breeder handlers access to the blueprints they spawn from.
type Nursery struct {
	Fab *blueprint.Fabricator
}
