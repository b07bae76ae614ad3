// Package config loads the YAML server configuration document.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server is the full configuration document. Every field has a default so a
// partial document is valid.
type Server struct {
	MaxPlayersPerMatch        uint32  `yaml:"max_players_per_match"`
	MaxParallelMatches        uint32  `yaml:"max_parallel_matches"`
	QueueSoftLimit            uint32  `yaml:"queue_soft_limit"`
	FillTimeoutSeconds        uint32  `yaml:"fill_timeout_seconds"`
	TickRate                  uint32  `yaml:"tick_rate"`
	SnapshotIntervalTicks     uint32  `yaml:"snapshot_interval_ticks"`
	FullSnapshotIntervalTicks uint32  `yaml:"full_snapshot_interval_ticks"`
	ListenPort                uint16  `yaml:"listen_port"`
	HeartbeatTimeoutSeconds   uint32  `yaml:"heartbeat_timeout_seconds"`
	MatchmakerPollMs          uint32  `yaml:"matchmaker_poll_ms"`
	LogLevel                  string  `yaml:"log_level"`
	LogJSON                   bool    `yaml:"log_json"`
	MetricsPort               uint16  `yaml:"metrics_port"`
	AuthMode                  string  `yaml:"auth_mode"`
	AuthStubPrefix            string  `yaml:"auth_stub_prefix"`
	BotFireIntervalTicks      uint32  `yaml:"bot_fire_interval_ticks"`
	MovementSpeed             float64 `yaml:"movement_speed"`
	ProjectileDamage          uint32  `yaml:"projectile_damage"`
	ReloadIntervalSec         float64 `yaml:"reload_interval_sec"`
	ProjectileSpeed           float64 `yaml:"projectile_speed"`
	ProjectileDensity         float64 `yaml:"projectile_density"`
	FireCooldownSec           float64 `yaml:"fire_cooldown_sec"`
	HullDensity               float64 `yaml:"hull_density"`
	TurretDensity             float64 `yaml:"turret_density"`
	DisableBotFire            bool    `yaml:"disable_bot_fire"`
	TestMode                  bool    `yaml:"test_mode"`
	SnapshotQuantize          bool    `yaml:"snapshot_quantize"`
	MapWidth                  float64 `yaml:"map_width"`
	MapHeight                 float64 `yaml:"map_height"`
}

// Default returns the built-in configuration.
func Default() Server {
	return Server{
		MaxPlayersPerMatch:        16,
		MaxParallelMatches:        4,
		QueueSoftLimit:            256,
		FillTimeoutSeconds:        180,
		TickRate:                  30,
		SnapshotIntervalTicks:     5,
		FullSnapshotIntervalTicks: 30,
		ListenPort:                40000,
		HeartbeatTimeoutSeconds:   30,
		MatchmakerPollMs:          200,
		LogLevel:                  "info",
		MetricsPort:               0,
		AuthMode:                  "disabled",
		AuthStubPrefix:            "user_",
		BotFireIntervalTicks:      60,
		MovementSpeed:             2.0,
		ProjectileDamage:          25,
		ReloadIntervalSec:         3.0,
		ProjectileSpeed:           5.0,
		ProjectileDensity:         0.01,
		FireCooldownSec:           1.0,
		HullDensity:               1.0,
		TurretDensity:             0.5,
		MapWidth:                  300,
		MapHeight:                 200,
	}
}

// Load reads the document at path over the defaults.
func Load(path string) (Server, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the simulation cannot run with.
func (c *Server) Validate() error {
	if c.MaxPlayersPerMatch == 0 {
		return fmt.Errorf("max_players_per_match must be positive")
	}
	if c.TickRate == 0 {
		return fmt.Errorf("tick_rate must be positive")
	}
	if c.SnapshotIntervalTicks == 0 {
		return fmt.Errorf("snapshot_interval_ticks must be positive")
	}
	switch c.AuthMode {
	case "disabled", "stub":
	default:
		return fmt.Errorf("auth_mode %q not recognized", c.AuthMode)
	}
	return nil
}
