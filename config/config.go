// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/pursuit/components"
)

//go:embed defaults.yaml
var defaultsYAML []byte


// Config holds all simulation configuration parameters.
type Config struct {
	Arena     ArenaConfig     `yaml:"arena"`
	Episode   EpisodeConfig   `yaml:"episode"`
	Placement PlacementConfig `yaml:"placement"`
	Motion    MotionConfig    `yaml:"motion"`
	Body      BodyConfig      `yaml:"body"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Policy    PolicyConfig    `yaml:"policy"`
	Roster    []AgentConfig   `yaml:"roster"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Storage   StorageConfig   `yaml:"storage"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ArenaConfig holds the bounded arena dimensions (XZ plane, centered on origin).
type ArenaConfig struct {
	Width float64 `yaml:"width"` // extent along X
	Depth float64 `yaml:"depth"` // extent along Z
}

// EpisodeConfig holds episode bookkeeping parameters.
type EpisodeConfig struct {
	MaxSteps    int     `yaml:"max_steps"`    // 0 or less disables the timeout
	SingleAgent bool    `yaml:"single_agent"` // individual rewards instead of group rewards
	DT          float64 `yaml:"dt"`           // seconds per tick
}

// PlacementConfig controls start-pose jitter on reset.
type PlacementConfig struct {
	PlaceRandomly bool    `yaml:"place_randomly"`
	JitterX       float64 `yaml:"jitter_x"` // full width of the X jitter window
	JitterZ       float64 `yaml:"jitter_z"` // full width of the Z jitter window
	RotMin        float64 `yaml:"rot_min"`  // degrees
	RotMax        float64 `yaml:"rot_max"`  // degrees
}

// MotionConfig holds per-faction movement speeds.
type MotionConfig struct {
	PredatorMoveSpeed   float64 `yaml:"predator_move_speed"`   // units per second
	PredatorRotateSpeed float64 `yaml:"predator_rotate_speed"` // degrees per step
	PreyMoveSpeed       float64 `yaml:"prey_move_speed"`
	PreyRotateSpeed     float64 `yaml:"prey_rotate_speed"`
}

// BodyConfig holds per-faction collider radii.
type BodyConfig struct {
	PredatorRadius float64 `yaml:"predator_radius"`
	PreyRadius     float64 `yaml:"prey_radius"`
}

// SensorsConfig holds ray perception parameters.
type SensorsConfig struct {
	RaysPerDirection      int     `yaml:"rays_per_direction"`
	DepthRaysPerDirection int     `yaml:"depth_rays_per_direction"`
	MaxRayDegrees         float64 `yaml:"max_ray_degrees"`
	RayLength             float64 `yaml:"ray_length"`
	CastRadius            float64 `yaml:"cast_radius"`
}

// PolicyConfig holds gains for the scripted heuristic policies.
type PolicyConfig struct {
	ChaseTurnGain float64 `yaml:"chase_turn_gain"` // predator steering toward prey hits
	FleeTurnGain  float64 `yaml:"flee_turn_gain"`  // prey steering away from predator hits
	WallTurnGain  float64 `yaml:"wall_turn_gain"`  // steering away from close walls
	Wander        float64 `yaml:"wander"`          // random turn amplitude
}

// AgentConfig describes one roster entry with its starting pose.
type AgentConfig struct {
	Name    string  `yaml:"name"`
	Faction string  `yaml:"faction"`
	X       float64 `yaml:"x"`
	Z       float64 `yaml:"z"`
	Yaw     float64 `yaml:"yaw"` // degrees
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int    `yaml:"stats_window"` // episodes per summary window
	SurvivalLog string `yaml:"survival_log"` // file name for the survival-step log (empty = disabled)
}

// StorageConfig selects the episode record backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`    // sqlite database path
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	DT32        float32 // Episode.DT as float32
	HalfWidth32 float32 // Arena.Width/2 as float32
	HalfDepth32 float32 // Arena.Depth/2 as float32
	NumRays     int     // 2*RaysPerDirection + 1
	NumPrey     int     // prey entries in the roster
	NumPredator int     // predator entries in the roster
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	defaultRoster := cfg.Roster

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// A roster in the user file replaces the default roster entirely.
		cfg.Roster = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if len(cfg.Roster) == 0 {
			cfg.Roster = defaultRoster
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks the configuration for values that would break the
// simulation. Values are reported, never clamped.
func (c *Config) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &ConfigError{Field: field, Reason: reason})
	}

	if c.Arena.Width <= 0 {
		bad("arena.width", "must be positive")
	}
	if c.Arena.Depth <= 0 {
		bad("arena.depth", "must be positive")
	}
	if c.Episode.DT <= 0 {
		bad("episode.dt", "must be positive")
	}
	if c.Placement.JitterX < 0 || c.Placement.JitterZ < 0 {
		bad("placement.jitter", "must not be negative")
	}
	if c.Placement.RotMax < c.Placement.RotMin {
		bad("placement.rot_max", "must not be below rot_min")
	}
	s := c.Sensors
	if s.RaysPerDirection < 0 {
		bad("sensors.rays_per_direction", "must not be negative")
	}
	if s.DepthRaysPerDirection < 0 || s.DepthRaysPerDirection > s.RaysPerDirection {
		bad("sensors.depth_rays_per_direction",
			fmt.Sprintf("must be in [0, %d], got %d", s.RaysPerDirection, s.DepthRaysPerDirection))
	}
	if s.MaxRayDegrees < 0 || s.MaxRayDegrees > 180 {
		bad("sensors.max_ray_degrees", "must be in [0, 180]")
	}
	if s.RayLength <= 0 {
		bad("sensors.ray_length", "must be positive")
	}

	var prey, pred int
	for i, a := range c.Roster {
		f, ok := components.ParseFaction(a.Faction)
		switch {
		case !ok:
			bad(fmt.Sprintf("roster[%d].faction", i), fmt.Sprintf("unknown faction %q", a.Faction))
		case f == components.FactionPrey:
			prey++
		default:
			pred++
		}
	}
	if prey == 0 {
		bad("roster", "needs at least one prey")
	}
	if pred == 0 {
		bad("roster", "needs at least one predator")
	}

	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.DT32 = float32(c.Episode.DT)
	c.Derived.HalfWidth32 = float32(c.Arena.Width / 2)
	c.Derived.HalfDepth32 = float32(c.Arena.Depth / 2)
	c.Derived.NumRays = 2*c.Sensors.RaysPerDirection + 1

	c.Derived.NumPrey = 0
	c.Derived.NumPredator = 0
	for _, a := range c.Roster {
		if f, _ := components.ParseFaction(a.Faction); f == components.FactionPrey {
			c.Derived.NumPrey++
		} else {
			c.Derived.NumPredator++
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Roster = append([]AgentConfig(nil), c.Roster...)
	return &cp
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
