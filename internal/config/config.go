// Package config loads the stormsurge configuration from an optional file and
// STORMSURGE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kkyr/fig"
)

const configEnv = "STORMSURGE"

// Config represents the application's configuration structure.
type Config struct {
	LogLevel slog.Level `fig:"loglevel" default:"0"`
	// Allowed values: text, json, tint
	LogFormat string `fig:"logformat" default:"text" check:"oneof=text json tint"`

	API struct {
		BaseURL   string        `fig:"base_url" default:"https://api.sehavniva.no/tideapi.php" check:"url"`
		UserAgent string        `fig:"user_agent"`
		Timeout   time.Duration `fig:"timeout" default:"30s" check:"gt=0"`
		// 0 disables pacing. Unset means 1s.
		MinInterval *time.Duration `fig:"min_interval" check:"gte=0"`
		// Unset means 60.
		RetryAttempts *int `fig:"retry_attempts" check:"min=1"`
		// Unset means 10s.
		RetryBackoff *time.Duration `fig:"retry_backoff" check:"gte=0"`
		// 0 disables the circuit breaker.
		BreakerThreshold uint32        `fig:"breaker_threshold"`
		BreakerTimeout   time.Duration `fig:"breaker_timeout" default:"1m" check:"gte=0"`
	} `fig:"api"`

	Cache struct {
		Disable bool   `fig:"disable"`
		Dir     string `fig:"dir"`
		// The warn limits are disabled by 0. Unset means 50 GiB, 2160h and
		// 100000 files.
		WarnGiB   *int64         `fig:"warn_gib" check:"gte=0"`
		WarnAge   *time.Duration `fig:"warn_age" check:"gte=0"`
		WarnFiles *int           `fig:"warn_files" check:"gte=0"`
	} `fig:"cache"`

	Grid struct {
		Resolution  time.Duration `fig:"resolution" default:"10m" check:"gte=1m"`
		SegmentSpan time.Duration `fig:"segment_span" default:"120h" check:"gtefield=Resolution"`
		FillValue   float32       `fig:"fill_value" default:"1e37" check:"gt=1e8"`
		// Allowed values: strict, overlap
		BoundsPolicy string `fig:"bounds_policy" default:"strict" check:"oneof=strict overlap"`
	} `fig:"grid"`

	Archive struct {
		Title       string `fig:"title" default:"Kartverket storm surge water levels"`
		Description string `fig:"description" default:"Observed and predicted water levels in cm relative to chart datum, on a regular time grid."`
		Institution string `fig:"institution"`
		Contact     string `fig:"contact"`
	} `fig:"archive"`

	Check struct {
		// Unset means 100.
		Trials    *int    `fig:"trials" check:"min=1"`
		Tolerance float64 `fig:"tolerance" default:"0.01" check:"gt=0"`
	} `fig:"check"`
}

// NewFromFile loads the configuration from file in path, with environment
// overrides.
func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, conf.Validate()
}

// New loads the configuration from defaults and the environment.
func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load config: %w", err)
	}
	return conf, conf.Validate()
}

// Validate checks field constraints and fills in defaults that depend on the
// environment.
func (c *Config) Validate() error {
	// fig overwrites a zero value with its default tag, so fields where 0
	// is meaningful are pointers defaulted here.
	setDefault(&c.API.MinInterval, time.Second)
	setDefault(&c.API.RetryAttempts, 60)
	setDefault(&c.API.RetryBackoff, 10*time.Second)
	setDefault(&c.Cache.WarnGiB, 50)
	setDefault(&c.Cache.WarnAge, 90*24*time.Hour)
	setDefault(&c.Cache.WarnFiles, 100000)
	setDefault(&c.Check.Trials, 100)

	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("check")
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Grid.SegmentSpan%c.Grid.Resolution != 0 {
		return fmt.Errorf("invalid config: segment span %s is not a multiple of resolution %s",
			c.Grid.SegmentSpan, c.Grid.Resolution)
	}
	if c.Cache.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cache directory not set and no home directory: %w", err)
		}
		c.Cache.Dir = filepath.Join(home, ".stormsurge", "cache")
	}
	return nil
}

func setDefault[T any](field **T, value T) {
	if *field == nil {
		*field = &value
	}
}
