// Package settings holds the runtime-mutable server settings shared by the
// simulation tick and the client-facing layer.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cory-johannsen/arena/internal/config"
)

// Sentinel errors returned by Set.
var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

// Values is a point-in-time copy of every setting.
type Values struct {
	Width               float64
	Height              float64
	ObstacleProbability float64
	BotRateOfFire       time.Duration
	PenaltyTime         time.Duration
	ConnectionTimeout   time.Duration
	MessageDuration     time.Duration
	MessageLength       int
	// ScoreLimit of -1 disables the round limit.
	ScoreLimit     int
	PlayerCooldown time.Duration
	BulletMaxAge   time.Duration
	BulletSpeed    float64
	BulletRadius   float64
}

// FromConfig copies the runtime-mutable subset of cfg.
func FromConfig(cfg config.Config) Values {
	return Values{
		Width:               cfg.Arena.Width,
		Height:              cfg.Arena.Height,
		ObstacleProbability: cfg.Arena.ObstacleProbability,
		BotRateOfFire:       cfg.Gameplay.BotRateOfFire,
		PenaltyTime:         cfg.Gameplay.PenaltyTime,
		ConnectionTimeout:   cfg.Listener.ConnectionTimeoutDelay,
		MessageDuration:     cfg.Gameplay.MessageDuration,
		MessageLength:       cfg.Gameplay.MessageLength,
		ScoreLimit:          cfg.Gameplay.ScoreLimit,
		PlayerCooldown:      cfg.Gameplay.PlayerCooldown,
		BulletMaxAge:        cfg.Gameplay.BulletMaxAge,
		BulletSpeed:         cfg.Gameplay.BulletSpeed,
		BulletRadius:        cfg.Gameplay.BulletRadius,
	}
}

// Validate reports every out-of-range value.
func (v Values) Validate() error {
	var errs []error
	if v.Width < 200 || v.Height < 200 {
		errs = append(errs, fmt.Errorf("arena must be at least 200x200, got %gx%g", v.Width, v.Height))
	}
	if v.ObstacleProbability < 0 || v.ObstacleProbability > 1 {
		errs = append(errs, fmt.Errorf("obstacle_probability must be in [0,1], got %g", v.ObstacleProbability))
	}
	for name, d := range map[string]time.Duration{
		"bot_rate_of_fire":         v.BotRateOfFire,
		"connection_timeout_delay": v.ConnectionTimeout,
		"message_duration":         v.MessageDuration,
		"bullet_max_age":           v.BulletMaxAge,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if v.PenaltyTime < 0 || v.PlayerCooldown < 0 {
		errs = append(errs, errors.New("penalty_time and player_cooldown must not be negative"))
	}
	if v.MessageLength < 1 {
		errs = append(errs, fmt.Errorf("message_length must be >= 1, got %d", v.MessageLength))
	}
	if v.ScoreLimit != -1 && v.ScoreLimit < 1 {
		errs = append(errs, fmt.Errorf("score_limit must be -1 or >= 1, got %d", v.ScoreLimit))
	}
	if v.BulletSpeed <= 0 || v.BulletRadius <= 0 {
		errs = append(errs, errors.New("bullet_speed and bullet_radius must be positive"))
	}
	return errors.Join(errs...)
}

// Settings is the lock-guarded shared settings value. The zero value is not
// usable; construct with New.
type Settings struct {
	mu sync.Mutex
	v  Values
}

// New returns Settings initialised to v.
//
// Precondition: v.Validate() == nil.
func New(v Values) *Settings {
	return &Settings{v: v}
}

// Snapshot returns a copy of the current values.
func (s *Settings) Snapshot() Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

// Update applies fn to a copy of the current values and stores the result
// only if it validates.
func (s *Settings) Update(fn func(*Values)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.v
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.v = next
	return nil
}

type setter func(v *Values, raw string) error

var setters = map[string]setter{
	"width":                    floatSetter(func(v *Values) *float64 { return &v.Width }),
	"height":                   floatSetter(func(v *Values) *float64 { return &v.Height }),
	"obstacle_probability":     floatSetter(func(v *Values) *float64 { return &v.ObstacleProbability }),
	"bullet_speed":             floatSetter(func(v *Values) *float64 { return &v.BulletSpeed }),
	"bullet_radius":            floatSetter(func(v *Values) *float64 { return &v.BulletRadius }),
	"bot_rate_of_fire":         durationSetter(func(v *Values) *time.Duration { return &v.BotRateOfFire }),
	"penalty_time":             durationSetter(func(v *Values) *time.Duration { return &v.PenaltyTime }),
	"connection_timeout_delay": durationSetter(func(v *Values) *time.Duration { return &v.ConnectionTimeout }),
	"message_duration":         durationSetter(func(v *Values) *time.Duration { return &v.MessageDuration }),
	"player_cooldown":          durationSetter(func(v *Values) *time.Duration { return &v.PlayerCooldown }),
	"bullet_max_age":           durationSetter(func(v *Values) *time.Duration { return &v.BulletMaxAge }),
	"message_length":           intSetter(func(v *Values) *int { return &v.MessageLength }),
	"score_limit":              intSetter(func(v *Values) *int { return &v.ScoreLimit }),
}

// Keys lists the names accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses raw for the named setting and stores it if the resulting values
// validate. Durations accept Go duration syntax ("500ms") or a bare integer
// number of milliseconds.
func (s *Settings) Set(key, raw string) error {
	fn, ok := setters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	var parseErr error
	err := s.Update(func(v *Values) {
		parseErr = fn(v, strings.TrimSpace(raw))
	})
	if parseErr != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, key, raw, parseErr)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

func floatSetter(field func(*Values) *float64) setter {
	return func(v *Values, raw string) error {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*field(v) = f
		return nil
	}
}

func intSetter(field func(*Values) *int) setter {
	return func(v *Values, raw string) error {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*field(v) = n
		return nil
	}
}

func durationSetter(field func(*Values) *time.Duration) setter {
	return func(v *Values, raw string) error {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			*field(v) = time.Duration(ms) * time.Millisecond
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*field(v) = d
		return nil
	}
}
