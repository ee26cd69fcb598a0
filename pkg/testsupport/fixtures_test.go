package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixtureYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.yaml")
	if err := os.WriteFile(path, []byte("users:\n  - name: ana\n    age: 30\n"), 0o644); err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	var got map[string][]map[string]any
	LoadFixtureYAML(t, path, &got)

	if len(got["users"]) != 1 || got["users"][0]["name"] != "ana" || got["users"][0]["age"] != 30 {
		t.Errorf("unexpected fixture content: %v", got)
	}
}

func TestCompareWithGoldenCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.txt")

	CompareWithGolden(t, path, []byte("hello"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("golden file not created: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("golden content = %q", data)
	}

	CompareWithGolden(t, path, []byte("hello"))
}

func TestPaths(t *testing.T) {
	if got := FixturePath("a.yaml"); got != filepath.Join("testdata", "a.yaml") {
		t.Errorf("FixturePath() = %q", got)
	}
	if got := GoldenPath("a.txt"); got != filepath.Join("testdata", "golden", "a.txt") {
		t.Errorf("GoldenPath() = %q", got)
	}
}

func TestSeedAndCount(t *testing.T) {
	p := NewProvider(t, MemoryConfig(t, "app"))
	Exec(t, p, "app", "create table users (id integer primary key, name text, age integer)")

	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := "users:\n  - {name: ana, age: 30}\n  - {name: bo, age: 41}\n  - {name: cy, age: 19}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}

	Seed(t, p, "app", path)

	if n := Count(t, p, "app", "users", ""); n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	if n := Count(t, p, "app", "users", "age > 20"); n != 2 {
		t.Errorf("rows over 20 = %d, want 2", n)
	}
}

func TestInsertRowSortsColumns(t *testing.T) {
	stmt, params := insertRow("t", map[string]any{"b": 2, "a": 1})

	if want := "insert into t (a, b) values (?a, ?b)"; stmt != want {
		t.Errorf("stmt = %q, want %q", stmt, want)
	}
	if params.Len() != 2 {
		t.Errorf("params = %d", params.Len())
	}
}
