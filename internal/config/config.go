package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/pmndrs/koota-sub000/internal/core/ecs"
)

type Config struct {
	World     WorldConfig     `toml:"world"`
	Logging   LoggingConfig   `toml:"logging"`
	Schema    SchemaConfig    `toml:"schema"`
	Scripting ScriptingConfig `toml:"scripting"`
	Sim       SimConfig       `toml:"sim"`
	Profile   ProfileConfig   `toml:"profile"`
}

type WorldConfig struct {
	Strict          bool `toml:"strict"`
	InitialCapacity int  `toml:"initial_capacity"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type SchemaConfig struct {
	TraitsFile  string `toml:"traits_file"`
	PrefabsFile string `toml:"prefabs_file"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"`
}

type SimConfig struct {
	TickRate time.Duration `toml:"tick_rate"`
	Ticks    int           `toml:"ticks"` // 0 = run until interrupted
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "", "cpu", "mem", "trace"
	Path string `toml:"path"`
}

// Load reads a TOML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes TOML over the defaults. name only labels errors.
func Parse(data []byte, name string) (*Config, error) {
	cfg := Defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse config %s: unknown key %s", name, undecoded[0])
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		World: WorldConfig{
			InitialCapacity: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Schema: SchemaConfig{
			TraitsFile:  "data/traits.yaml",
			PrefabsFile: "data/prefabs.yaml",
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
		Sim: SimConfig{
			TickRate: 50 * time.Millisecond,
			Ticks:    100,
		},
		Profile: ProfileConfig{
			Path: ".",
		},
	}
}

func (c *Config) validate() error {
	if c.World.InitialCapacity < 0 {
		return fmt.Errorf("world.initial_capacity must not be negative")
	}
	if c.Sim.TickRate <= 0 {
		return fmt.Errorf("sim.tick_rate must be positive")
	}
	switch c.Profile.Mode {
	case "", "cpu", "mem", "trace":
	default:
		return fmt.Errorf("profile.mode %q is not one of cpu, mem, trace", c.Profile.Mode)
	}
	return nil
}

// WorldOptions maps the [world] section onto ecs options.
func (c *Config) WorldOptions(log *zap.Logger) []ecs.Option {
	return []ecs.Option{
		ecs.WithStrict(c.World.Strict),
		ecs.WithCapacity(c.World.InitialCapacity),
		ecs.WithLogger(log),
	}
}
