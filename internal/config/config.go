// Package config provides Viper-based configuration loading for the arena server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ArenaConfig holds the simulated world's geometry and tick settings.
type ArenaConfig struct {
	// Width is the arena width in world units.
	Width float64 `mapstructure:"width"`
	// Height is the arena height in world units.
	Height float64 `mapstructure:"height"`
	// ObstacleProbability is the chance each map cell receives an obstacle.
	ObstacleProbability float64 `mapstructure:"obstacle_probability"`
	// TickRate is the number of simulation ticks per second.
	TickRate int `mapstructure:"tick_rate"`
	// Seed seeds the simulation random source; 0 picks a random seed.
	Seed int64 `mapstructure:"seed"`
}

// GameplayConfig holds rules that may be changed at runtime through settings.
type GameplayConfig struct {
	// BotRateOfFire is the minimum interval between two AI shots.
	BotRateOfFire time.Duration `mapstructure:"bot_rate_of_fire"`
	// PenaltyTime is how long a flooding client has its commands refused.
	PenaltyTime time.Duration `mapstructure:"penalty_time"`
	// MessageDuration is how long chat messages stay queryable.
	MessageDuration time.Duration `mapstructure:"message_duration"`
	// MessageLength is the maximum chat message length in characters.
	MessageLength int `mapstructure:"message_length"`
	// ScoreLimit ends the round when reached; -1 means unlimited.
	ScoreLimit int `mapstructure:"score_limit"`
	// PlayerCooldown is the minimum interval between two player shots.
	PlayerCooldown time.Duration `mapstructure:"player_cooldown"`
	// BulletMaxAge is the simulated lifetime of a bullet.
	BulletMaxAge time.Duration `mapstructure:"bullet_max_age"`
	// BulletSpeed is the bullet speed in world units per second.
	BulletSpeed float64 `mapstructure:"bullet_speed"`
	// BulletRadius is the bullet collider radius.
	BulletRadius float64 `mapstructure:"bullet_radius"`
}

// ListenerConfig holds the client protocol listener settings.
type ListenerConfig struct {
	// Host is the bind address for the client listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the client listener.
	Port int `mapstructure:"port"`
	// ReadTimeout bounds a single blocking read so idle checks can interleave.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for client connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ConnectionTimeoutDelay closes a session idle for longer than this.
	ConnectionTimeoutDelay time.Duration `mapstructure:"connection_timeout_delay"`
	// CommandsPerSecond is the sustained command rate allowed per session.
	CommandsPerSecond float64 `mapstructure:"commands_per_second"`
	// CommandBurst is the command burst allowed per session.
	CommandBurst int `mapstructure:"command_burst"`
	// AllowRemoteSettings enables the SET protocol command.
	AllowRemoteSettings bool `mapstructure:"allow_remote_settings"`
	// MaxConnections caps concurrent client connections; 0 means no cap.
	MaxConnections int `mapstructure:"max_connections"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// AdminConfig holds the presentation/admin HTTP API settings.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns the "host:port" admin address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Arena    ArenaConfig    `mapstructure:"arena"`
	Gameplay GameplayConfig `mapstructure:"gameplay"`
	Listener ListenerConfig `mapstructure:"listener"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateArena(c.Arena),
		validateGameplay(c.Gameplay),
		validateListener(c.Listener),
		validateAdmin(c.Admin),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateArena(a ArenaConfig) error {
	var errs []string
	if a.Width < 200 {
		errs = append(errs, fmt.Sprintf("arena.width must be >= 200, got %g", a.Width))
	}
	if a.Height < 200 {
		errs = append(errs, fmt.Sprintf("arena.height must be >= 200, got %g", a.Height))
	}
	if a.ObstacleProbability < 0 || a.ObstacleProbability > 1 {
		errs = append(errs, fmt.Sprintf("arena.obstacle_probability must be in [0, 1], got %g", a.ObstacleProbability))
	}
	if a.TickRate < 1 || a.TickRate > 240 {
		errs = append(errs, fmt.Sprintf("arena.tick_rate must be 1-240, got %d", a.TickRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGameplay(g GameplayConfig) error {
	var errs []string
	if g.BotRateOfFire <= 0 {
		errs = append(errs, "gameplay.bot_rate_of_fire must be positive")
	}
	if g.PenaltyTime < 0 {
		errs = append(errs, "gameplay.penalty_time must not be negative")
	}
	if g.MessageDuration <= 0 {
		errs = append(errs, "gameplay.message_duration must be positive")
	}
	if g.MessageLength < 1 {
		errs = append(errs, fmt.Sprintf("gameplay.message_length must be >= 1, got %d", g.MessageLength))
	}
	if g.ScoreLimit == 0 || g.ScoreLimit < -1 {
		errs = append(errs, fmt.Sprintf("gameplay.score_limit must be -1 or positive, got %d", g.ScoreLimit))
	}
	if g.PlayerCooldown < 0 {
		errs = append(errs, "gameplay.player_cooldown must not be negative")
	}
	if g.BulletMaxAge <= 0 {
		errs = append(errs, "gameplay.bullet_max_age must be positive")
	}
	if g.BulletSpeed <= 0 {
		errs = append(errs, "gameplay.bullet_speed must be positive")
	}
	if g.BulletRadius <= 0 {
		errs = append(errs, "gameplay.bullet_radius must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListener(l ListenerConfig) error {
	var errs []string
	if l.Host == "" {
		errs = append(errs, "listener.host must not be empty")
	}
	if l.Port < 0 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listener.port must be 0-65535, got %d", l.Port))
	}
	if l.ReadTimeout <= 0 {
		errs = append(errs, "listener.read_timeout must be positive")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "listener.write_timeout must not be negative")
	}
	if l.ConnectionTimeoutDelay <= 0 {
		errs = append(errs, "listener.connection_timeout_delay must be positive")
	}
	if l.ReadTimeout > 0 && l.ConnectionTimeoutDelay > 0 && l.ReadTimeout >= l.ConnectionTimeoutDelay {
		errs = append(errs, "listener.read_timeout must be shorter than listener.connection_timeout_delay")
	}
	if l.CommandsPerSecond <= 0 {
		errs = append(errs, "listener.commands_per_second must be positive")
	}
	if l.CommandBurst < 1 {
		errs = append(errs, fmt.Sprintf("listener.command_burst must be >= 1, got %d", l.CommandBurst))
	}
	if l.MaxConnections < 0 {
		errs = append(errs, fmt.Sprintf("listener.max_connections must not be negative, got %d", l.MaxConnections))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.Host == "" {
		errs = append(errs, "admin.host must not be empty")
	}
	if a.Port < 0 || a.Port > 65535 {
		errs = append(errs, fmt.Sprintf("admin.port must be 0-65535, got %d", a.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path loads defaults and
// environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ARENA_ prefix
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: unmarshalling defaults: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arena.width", 1200.0)
	v.SetDefault("arena.height", 1000.0)
	v.SetDefault("arena.obstacle_probability", 0.3)
	v.SetDefault("arena.tick_rate", 30)
	v.SetDefault("arena.seed", 0)

	v.SetDefault("gameplay.bot_rate_of_fire", "500ms")
	v.SetDefault("gameplay.penalty_time", "1s")
	v.SetDefault("gameplay.message_duration", "30s")
	v.SetDefault("gameplay.message_length", 40)
	v.SetDefault("gameplay.score_limit", -1)
	v.SetDefault("gameplay.player_cooldown", "1s")
	v.SetDefault("gameplay.bullet_max_age", "2s")
	v.SetDefault("gameplay.bullet_speed", 500.0)
	v.SetDefault("gameplay.bullet_radius", 3.0)

	v.SetDefault("listener.host", "127.0.0.1")
	v.SetDefault("listener.port", 7878)
	v.SetDefault("listener.read_timeout", "100ms")
	v.SetDefault("listener.write_timeout", "5s")
	v.SetDefault("listener.connection_timeout_delay", "10s")
	v.SetDefault("listener.commands_per_second", 20.0)
	v.SetDefault("listener.command_burst", 40)
	v.SetDefault("listener.allow_remote_settings", false)
	v.SetDefault("listener.max_connections", 256)

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 7879)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
