package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	World      WorldConfig      `toml:"world"`
	Tick       TickConfig       `toml:"tick"`
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Snapshot   SnapshotConfig   `toml:"snapshot"`
	Scripts    ScriptsConfig    `toml:"scripts"`
	Blueprints BlueprintsConfig `toml:"blueprints"`
	Profile    ProfileConfig    `toml:"profile"`
}

type WorldConfig struct {
	Workers  int `toml:"workers"`  // broadcast goroutines; 0 = GOMAXPROCS
	Capacity int `toml:"capacity"` // initial entity slots
}

type TickConfig struct {
	Rate   time.Duration `toml:"rate"`
	Rounds int           `toml:"rounds"` // 0 = run until signalled
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// DatabaseConfig configures snapshot persistence. An empty DSN disables it.
type DatabaseConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type SnapshotConfig struct {
	IntervalTicks int    `toml:"interval_ticks"` // 0 disables periodic snapshots
	Dir           string `toml:"dir"`            // also write YAML files here when set
	Keep          int    `toml:"keep"`           // rows kept in the database
}

type ScriptsConfig struct {
	Dir string `toml:"dir"`
}

type BlueprintsConfig struct {
	Files []string       `toml:"files"`
	Seed  map[string]int `toml:"seed"` // blueprint name -> entities spawned at boot
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "", "cpu" or "mem"
	Path string `toml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML over the defaults. name is only used in errors.
func Parse(data []byte, name string) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tick.Rate <= 0 {
		return fmt.Errorf("tick.rate must be positive, got %s", c.Tick.Rate)
	}
	if c.World.Workers < 0 {
		return fmt.Errorf("world.workers must not be negative, got %d", c.World.Workers)
	}
	switch c.Profile.Mode {
	case "", "cpu", "mem":
	default:
		return fmt.Errorf("profile.mode %q: want cpu, mem or empty", c.Profile.Mode)
	}
	for name, n := range c.Blueprints.Seed {
		if n < 0 {
			return fmt.Errorf("blueprints.seed.%s must not be negative", name)
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		World: WorldConfig{
			Workers:  1,
			Capacity: 1024,
		},
		Tick: TickConfig{
			Rate: 200 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Snapshot: SnapshotConfig{
			IntervalTicks: 300,
			Keep:          10,
		},
		Scripts: ScriptsConfig{
			Dir: "scripts",
		},
		Blueprints: BlueprintsConfig{
			Files: []string{"blueprints/creatures.yaml"},
		},
		Profile: ProfileConfig{
			Path: ".",
		},
	}
}
