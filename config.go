package exqscheduler

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the scheduler's external configuration (spec §6): where
// metadata and queues live in Redis, the miss window and default
// timezone, the Redis connection itself, and the set of schedules to
// reconcile at bootstrap.
type Config struct {
	StorageOpts StorageOpts               `yaml:"storage_opts"`
	ServerOpts  ServerOpts                `yaml:"server_opts"`
	Redis       RedisOpts                 `yaml:"redis"`
	Schedules   map[string]ScheduleConfig `yaml:"schedules"`
}

// StorageOpts names the two Redis key prefixes §4.5 requires to be
// distinct: metadata owned by this project, and queues/locks shared with
// the downstream worker ecosystem.
type StorageOpts struct {
	// Namespace prefixes schedule definitions, state, and firing times.
	Namespace string `yaml:"namespace"`

	// ExqNamespace prefixes queues and the enqueued-jobs lock set.
	ExqNamespace string `yaml:"exq_namespace"`
}

// ServerOpts holds the scheduler's own tunables, as opposed to per-schedule
// ones.
type ServerOpts struct {
	// MissedJobsThresholdDuration is the miss window in milliseconds.
	// Zero is coerced to the documented default of 100000 (100s) by
	// LoadConfig; any other positive value is accepted as-is.
	MissedJobsThresholdDuration int64 `yaml:"missed_jobs_threshold_duration"`

	// TimeZone is the fixed UTC offset (e.g. "+05:30", "-08:00", "UTC")
	// applied to schedules that don't set their own timezone.
	TimeZone string `yaml:"time_zone"`
}

// RedisOpts wraps the connection spec.
type RedisOpts struct {
	Spec RedisSpec `yaml:"spec"`
}

// RedisSpec describes how to reach Redis and how aggressively to retry.
type RedisSpec struct {
	Host     string      `yaml:"host"`
	Port     int         `yaml:"port"`
	Database int         `yaml:"database"`
	Name     string      `yaml:"name"`
	Backoff  BackoffSpec `yaml:"backoff"`
}

// BackoffSpec configures the redis.Gateway's retry strategy (§5: "initial
// 1s, max 1s by default"). Zero values are coerced to those defaults.
type BackoffSpec struct {
	InitialMS int64 `yaml:"initial_ms"`
	MaxMS     int64 `yaml:"max_ms"`
}

// ScheduleConfig is one entry of the `schedules` map: name → this.
type ScheduleConfig struct {
	Description     string `yaml:"description"`
	Cron            string `yaml:"cron"`
	Class           string `yaml:"class"`
	Queue           string `yaml:"queue,omitempty"`
	Args            []any  `yaml:"args,omitempty"`
	IncludeMetadata bool   `yaml:"include_metadata,omitempty"`
	// Enabled is a pointer so an absent key is distinguishable from an
	// explicit false; absent defaults to true (P2, mirrored at config time).
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Timezone string `yaml:"timezone,omitempty"`
}

// LoadConfig parses and validates a YAML document against the schema
// above, rejecting unknown keys so a typo in a config file fails loudly
// at startup rather than being silently ignored.
func LoadConfig(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrConfigInvalid, err)
	}

	if cfg.ServerOpts.MissedJobsThresholdDuration == 0 {
		cfg.ServerOpts.MissedJobsThresholdDuration = 100_000
	}
	if cfg.Redis.Spec.Backoff.InitialMS == 0 {
		cfg.Redis.Spec.Backoff.InitialMS = 1000
	}
	if cfg.Redis.Spec.Backoff.MaxMS == 0 {
		cfg.Redis.Spec.Backoff.MaxMS = 1000
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the required fields are present and well-formed. It does
// not attempt to parse cron expressions — schedule.New does that, and
// bootstrap surfaces the first such failure per §4.7.
func (c *Config) Validate() error {
	if c.StorageOpts.Namespace == "" {
		return fmt.Errorf("%w: storage_opts.namespace is required", ErrConfigInvalid)
	}
	if c.StorageOpts.ExqNamespace == "" {
		return fmt.Errorf("%w: storage_opts.exq_namespace is required", ErrConfigInvalid)
	}
	if c.StorageOpts.Namespace == c.StorageOpts.ExqNamespace {
		return fmt.Errorf("%w: storage_opts.namespace and exq_namespace must be distinct (§3)", ErrConfigInvalid)
	}
	if c.ServerOpts.MissedJobsThresholdDuration < 0 {
		return fmt.Errorf("%w: server_opts.missed_jobs_threshold_duration must be positive", ErrConfigInvalid)
	}
	if c.ServerOpts.TimeZone != "" {
		if _, err := ParseTZOffset(c.ServerOpts.TimeZone); err != nil {
			return fmt.Errorf("%w: server_opts.time_zone: %v", ErrConfigInvalid, err)
		}
	}
	for name, sc := range c.Schedules {
		if sc.Cron == "" {
			return fmt.Errorf("%w: schedules.%s.cron is required", ErrConfigInvalid, name)
		}
		if sc.Class == "" {
			return fmt.Errorf("%w: schedules.%s.class is required", ErrConfigInvalid, name)
		}
		if sc.Timezone != "" {
			if _, err := ParseTZOffset(sc.Timezone); err != nil {
				return fmt.Errorf("%w: schedules.%s.timezone: %v", ErrConfigInvalid, name, err)
			}
		}
	}
	return nil
}

// MissWindow returns ServerOpts.MissedJobsThresholdDuration as a
// time.Duration.
func (c *Config) MissWindow() time.Duration {
	return time.Duration(c.ServerOpts.MissedJobsThresholdDuration) * time.Millisecond
}

// ParseTZOffset parses a fixed UTC offset in the forms "UTC", "Z",
// "+05:30", or "-08:00". Unlike an IANA zone name, this never depends on
// a tzdata database being present at runtime (§3: "fixed UTC offsets,
// not IANA zone names").
func ParseTZOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "UTC") || s == "Z" {
		return 0, nil
	}

	sign := time.Duration(1)
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	default:
		return 0, fmt.Errorf("offset %q must start with + or -, or be UTC/Z", s)
	}

	parts := strings.SplitN(s, ":", 2)
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("offset %q: invalid hours: %v", s, err)
	}
	minutes := 0
	if len(parts) == 2 {
		minutes, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, fmt.Errorf("offset %q: invalid minutes: %v", s, err)
		}
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("offset %q: out of range", s)
	}
	return sign * (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute), nil
}
