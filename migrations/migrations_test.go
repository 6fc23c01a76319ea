package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.Glob(FS, "*.sql")
	if err != nil {
		t.Fatalf("glob embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	seen := map[string]bool{}
	for _, name := range entries {
		seen[name] = true
		data, err := fs.ReadFile(FS, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		sql := string(data)
		if !strings.Contains(sql, "-- +goose Up") {
			t.Errorf("%s missing goose Up annotation", name)
		}
		if !strings.Contains(sql, "-- +goose Down") {
			t.Errorf("%s missing goose Down annotation", name)
		}
	}
	if !seen["00001_create_projects.sql"] {
		t.Fatal("initial projects migration not embedded")
	}
}
