package testsupport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-dal/criteria"
	"github.com/goliatone/go-dal/datasource"
)

var memorySeq atomic.Int64

// MemoryConfig returns a data source config with one write endpoint per
// schema, each a private shared-cache in-memory SQLite database. Reads are
// aliased to the write endpoint.
func MemoryConfig(t testing.TB, schemas ...string) *datasource.Config {
	t.Helper()

	cfg := datasource.DefaultConfig()
	cfg.Retry.Delay = time.Millisecond
	base := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	for _, schema := range schemas {
		name := fmt.Sprintf("%s_%s_%d", base, schema, memorySeq.Add(1))
		cfg.DataSources = append(cfg.DataSources, datasource.DataSource{
			Name:   schema,
			Schema: schema,
			Driver: datasource.DriverSQLite,
			URL:    "file:" + name + "?mode=memory&cache=shared",
		})
		cfg.ReadAliases[schema] = schema
	}
	return cfg
}

// NewProvider builds a provider over cfg that is closed when the test ends.
func NewProvider(t testing.TB, cfg *datasource.Config, opts ...datasource.Option) *datasource.Provider {
	t.Helper()

	p, err := datasource.NewProvider(cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// Exec runs statements on schema in one auto-commit connection.
func Exec(t testing.TB, p *datasource.Provider, schema string, stmts ...string) {
	t.Helper()

	ctx := context.Background()
	conn, err := p.Conn(ctx, schema, false, true)
	if err != nil {
		t.Fatalf("failed to open %s: %v", schema, err)
	}
	defer conn.Close()

	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

// Seed inserts the rows of a YAML fixture shaped as table -> list of rows.
func Seed(t testing.TB, p *datasource.Provider, schema, path string) {
	t.Helper()

	var tables map[string][]map[string]any
	LoadFixtureYAML(t, path, &tables)

	names := make([]string, 0, len(tables))
	for table := range tables {
		names = append(names, table)
	}
	sort.Strings(names)

	ctx := context.Background()
	conn, err := p.Conn(ctx, schema, false, true)
	if err != nil {
		t.Fatalf("failed to open %s: %v", schema, err)
	}
	defer conn.Close()

	for _, table := range names {
		for _, row := range tables[table] {
			stmt, params := insertRow(table, row)
			if _, err := conn.Exec(ctx, stmt, params); err != nil {
				t.Fatalf("failed to seed %s: %v", table, err)
			}
		}
	}
}

// Count returns the number of rows of table matching where (may be empty).
func Count(t testing.TB, p *datasource.Provider, schema, table, where string) int {
	t.Helper()

	ctx := context.Background()
	conn, err := p.Conn(ctx, schema, true, true)
	if err != nil {
		t.Fatalf("failed to open %s: %v", schema, err)
	}
	defer conn.Close()

	query := "select count(*) from " + table
	if where != "" {
		query += " where " + where
	}
	row, err := conn.QueryRow(ctx, query)
	if err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

func insertRow(table string, row map[string]any) (string, *criteria.Params) {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	params := criteria.NewParams()
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		params.Set(col, row[col])
		placeholders[i] = "?" + col
	}
	stmt := fmt.Sprintf("insert into %s (%s) values (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return stmt, params
}
