package store

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"fleetroute/internal/model"
)

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v != nil {
		t.Fatalf("empty -> nil expected, got %v", v)
	}
	if v := nullIfEmpty("x"); v != "x" {
		t.Fatalf("want x, got %v", v)
	}
}

func TestCoordRoundTrip(t *testing.T) {
	lat, lng := coordArgs(nil)
	if lat != nil || lng != nil {
		t.Fatalf("nil coordinate must map to NULLs")
	}
	if c := coordFromNull(sql.NullFloat64{Float64: 1, Valid: true}, sql.NullFloat64{}); c != nil {
		t.Fatalf("half-null coordinate must be nil, got %+v", c)
	}
	c := coordFromNull(sql.NullFloat64{Float64: -3.7, Valid: true}, sql.NullFloat64{Float64: -38.5, Valid: true})
	if c == nil || *c != (model.Coordinate{Lat: -3.7, Lon: -38.5}) {
		t.Fatalf("got %+v", c)
	}
}

func TestStrFromNull(t *testing.T) {
	if strFromNull(sql.NullString{}) != nil {
		t.Fatalf("invalid -> nil expected")
	}
	if s := strFromNull(sql.NullString{String: "r1", Valid: true}); s == nil || *s != "r1" {
		t.Fatalf("got %v", s)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	body, err := migrations.ReadFile("migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"depots", "customers", "vehicles", "plannings", "routes", "orders"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("migration missing table %s", table)
		}
	}
}

func TestEmbeddedRunIDMigration(t *testing.T) {
	body, err := migrations.ReadFile("migrations/0002_run_id.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(body), "ADD COLUMN IF NOT EXISTS run_id uuid") {
		t.Fatalf("run_id migration must be idempotent: %s", body)
	}
}

func TestCheckIDs(t *testing.T) {
	if err := checkIDs("6f1c1e0a-4a8e-4b8e-9a57-0d7c3f0a2b11", "6F1C1E0A-4A8E-4B8E-9A57-0D7C3F0A2B11"); err != nil {
		t.Fatalf("valid ids rejected: %v", err)
	}
	for _, id := range []string{"", "nope", "6f1c1e0a-4a8e"} {
		if err := checkIDs(id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%q: want ErrNotFound, got %v", id, err)
		}
	}
}

func TestTrimPage(t *testing.T) {
	id := func(s string) string { return s }
	rows, next := trimPage([]string{"a", "b"}, 2, id)
	if len(rows) != 2 || next != "" {
		t.Fatalf("exact fit: %v %q", rows, next)
	}
	rows, next = trimPage([]string{"a", "b", "c"}, 2, id)
	if len(rows) != 2 || next != "b" {
		t.Fatalf("extra row: %v %q", rows, next)
	}
}
