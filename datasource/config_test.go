package datasource

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-dal/dberrors"
)

const sampleYAML = `
datasources:
  - name: main
    schema: app
    driver: postgres
    url: postgres://db-main:5432/app?sslmode=disable
  - name: replica-1
    schema: app
    read_only: true
    driver: postgres
    url: postgres://db-r1:5432/app?sslmode=disable
  - name: audit
    schema: audit
    driver: sqlite3
    url: file:audit.db
read_aliases:
  audit: audit
retry:
  attempts: 5
  delay: 250ms
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "dal.yaml", sampleYAML)
	env := writeFile(t, "test.env", "DAL_REPLICA_1_USER=reader\nDAL_REPLICA_1_PASSWORD=secret\n")
	t.Cleanup(func() {
		os.Unsetenv("DAL_REPLICA_1_USER")
		os.Unsetenv("DAL_REPLICA_1_PASSWORD")
	})

	cfg, err := LoadConfig(path, env)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if len(cfg.DataSources) != 3 {
		t.Fatalf("expected 3 data sources, got %d", len(cfg.DataSources))
	}
	if cfg.Retry.Attempts != 5 || cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	replica := cfg.DataSources[1]
	if replica.User != "reader" || replica.Password != "secret" {
		t.Errorf("env overrides not applied: %+v", replica)
	}
	if cfg.ReadAliases["audit"] != "audit" {
		t.Errorf("read aliases = %v", cfg.ReadAliases)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{DataSources: []DataSource{{Name: "a", Schema: "s", Driver: DriverSQLite, URL: "x"}}}
	cfg.applyDefaults()

	def := DefaultConfig()
	if cfg.Retry != def.Retry {
		t.Errorf("retry = %+v, want %+v", cfg.Retry, def.Retry)
	}
	if cfg.ReadAliases == nil {
		t.Error("read aliases not initialized")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := &Config{DataSources: []DataSource{{Name: "main-db", URL: "old"}}}
	env := map[string]string{
		"DAL_RETRY_ATTEMPTS": "7",
		"DAL_RETRY_DELAY":    "2s",
		"DAL_MAIN_DB_URL":    "new",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Retry.Attempts != 7 || cfg.Retry.Delay != 2*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.DataSources[0].URL != "new" {
		t.Errorf("url = %q", cfg.DataSources[0].URL)
	}

	env["DAL_RETRY_ATTEMPTS"] = "many"
	if err := cfg.ApplyEnv(lookup); !dberrors.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.DataSources = []DataSource{
			{Name: "w", Schema: "app", Driver: DriverPostgres, URL: "postgres://x"},
			{Name: "r", Schema: "app", ReadOnly: true, Driver: DriverPostgres, URL: "postgres://y"},
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no sources", func(c *Config) { c.DataSources = nil }, false},
		{"bad driver", func(c *Config) { c.DataSources[0].Driver = "oracle" }, false},
		{"missing url", func(c *Config) { c.DataSources[1].URL = "" }, false},
		{"duplicate name", func(c *Config) { c.DataSources[1].Name = "w" }, false},
		{"two writers", func(c *Config) { c.DataSources[1].ReadOnly = false }, false},
		{"reader only schema", func(c *Config) { c.DataSources[0].ReadOnly = true }, false},
		{"unknown alias", func(c *Config) { c.ReadAliases["app"] = "nope" }, false},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !dberrors.IsConfiguration(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		ds   DataSource
		want string
	}{
		{"sqlite untouched", DataSource{Driver: DriverSQLite, URL: "file:x.db", User: "u"}, "file:x.db"},
		{"pg url", DataSource{Driver: DriverPostgres, URL: "postgres://h:5432/db", User: "u", Password: "p"}, "postgres://u:p@h:5432/db"},
		{"pg key value", DataSource{Driver: DriverPostgres, URL: "host=h dbname=db", User: "u"}, "host=h dbname=db user=u"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.ds.DSN()
			if err != nil {
				t.Fatalf("DSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}
