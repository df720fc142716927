// Package sim is a small creature simulation built on the ecs runtime. Each
// tick broadcasts a Tick message; components react by healing, breeding,
// ageing or taking damage, and the world is finalized after every round.
package sim

// Component structs are pure data. Behavior lives in the handlers registered
// by Register.

// Vitals holds hit points. An entity whose HP reaches zero is despawned.
type Vitals struct {
	HP    int `yaml:"hp"`
	MaxHP int `yaml:"max_hp"`
}

// Regen heals Amount HP every Every ticks.
type Regen struct {
	Amount  int `yaml:"amount"`
	Every   int `yaml:"every"`
	Counter int `yaml:"counter"`
}

// Armor reduces incoming damage. It must come before Vitals on the entity
// for the reduction to apply.
type Armor struct {
	Reduction int `yaml:"reduction"`
}

// Poison deals Amount damage every Every ticks.
type Poison struct {
	Amount  int `yaml:"amount"`
	Every   int `yaml:"every"`
	Counter int `yaml:"counter"`
}

// Breeder spawns Litter entities from Blueprint every Every ticks.
type Breeder struct {
	Blueprint string `yaml:"blueprint"`
	Every     int    `yaml:"every"`
	Litter    int    `yaml:"litter"`
	Counter   int    `yaml:"counter"`
}

// Lifespan despawns the entity once Ticks reaches zero.
type Lifespan struct {
	Ticks int `yaml:"ticks"`
}
