package datasource

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-dal/dberrors"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DataSource describes one physical endpoint of a logical schema.
type DataSource struct {
	Name         string `yaml:"name"`
	Schema       string `yaml:"schema"`
	ReadOnly     bool   `yaml:"read_only"`
	Driver       string `yaml:"driver"`
	URL          string `yaml:"url"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	AutoCommit   bool   `yaml:"auto_commit"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// Validate implements validation.Validatable.
func (d DataSource) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.Schema, validation.Required),
		validation.Field(&d.Driver, validation.Required, validation.In(DriverPostgres, DriverSQLite)),
		validation.Field(&d.URL, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
	)
}

// RetryConfig is the fixed retry policy of connection opening.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// Config holds every endpoint and the connection policy.
type Config struct {
	DataSources []DataSource `yaml:"datasources"`
	// ReadAliases maps a schema without read endpoints to the endpoint that
	// serves its reads. Without an alias such reads fail.
	ReadAliases map[string]string `yaml:"read_aliases"`
	Retry       RetryConfig       `yaml:"retry"`
}

// DefaultConfig returns a Config without endpoints and the default retry policy.
func DefaultConfig() *Config {
	return &Config{
		ReadAliases: map[string]string{},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    500 * time.Millisecond,
		},
	}
}

// LoadConfig reads a YAML config file, applies defaults and environment
// overrides, and validates the result. Values from envFiles are loaded into
// the process environment first; when none are given an optional .env in the
// working directory is used.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ReadAliases == nil {
		c.ReadAliases = def.ReadAliases
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = def.Retry.Attempts
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = def.Retry.Delay
	}
}

// ApplyEnv overrides values from the environment:
// DAL_RETRY_ATTEMPTS, DAL_RETRY_DELAY and DAL_<NAME>_URL, DAL_<NAME>_USER,
// DAL_<NAME>_PASSWORD per data source name.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DAL_RETRY_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return dberrors.Configuration("DAL_RETRY_ATTEMPTS: %v", err)
		}
		c.Retry.Attempts = n
	}
	if v, ok := lookup("DAL_RETRY_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return dberrors.Configuration("DAL_RETRY_DELAY: %v", err)
		}
		c.Retry.Delay = d
	}
	for i := range c.DataSources {
		ds := &c.DataSources[i]
		prefix := "DAL_" + envName(ds.Name) + "_"
		if v, ok := lookup(prefix + "URL"); ok {
			ds.URL = v
		}
		if v, ok := lookup(prefix + "USER"); ok {
			ds.User = v
		}
		if v, ok := lookup(prefix + "PASSWORD"); ok {
			ds.Password = v
		}
	}
	return nil
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, name)
}

// Validate checks every data source and the cross references between them:
// unique names, exactly one write endpoint per schema, aliases pointing at
// known endpoints.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DataSources, validation.Required),
		validation.Field(&c.Retry),
	)
	if err != nil {
		return asConfigError(goerrors.FromOzzoValidation(err, "invalid data source configuration"))
	}

	names := make(map[string]bool, len(c.DataSources))
	writers := make(map[string]int)
	for _, ds := range c.DataSources {
		if names[ds.Name] {
			return dberrors.Configuration("duplicate data source %q", ds.Name)
		}
		names[ds.Name] = true
		if !ds.ReadOnly {
			writers[ds.Schema]++
		}
	}
	for _, ds := range c.DataSources {
		if writers[ds.Schema] != 1 {
			return dberrors.Configuration("schema %q needs exactly one write endpoint, found %d", ds.Schema, writers[ds.Schema])
		}
	}
	for schema, endpoint := range c.ReadAliases {
		if !names[endpoint] {
			return dberrors.Configuration("read alias for %q points at unknown endpoint %q", schema, endpoint)
		}
	}
	return nil
}

// Validate implements validation.Validatable.
func (r RetryConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Attempts, validation.Required, validation.Min(1)),
		validation.Field(&r.Delay, validation.Min(time.Duration(0))),
	)
}

// asConfigError moves an ozzo derived validation error into the configuration category.
func asConfigError(err *goerrors.Error) error {
	if err == nil {
		return nil
	}
	err.Category = dberrors.CategoryConfiguration
	err.TextCode = dberrors.CodeInvalidConfig
	return err
}
