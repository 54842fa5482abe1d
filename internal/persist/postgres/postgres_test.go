package postgres

import "testing"

// A live Postgres instance is not available in this test environment, so
// this only covers the dialect's SQL fragments; no test in the module
// calls Open. The shared sqlstore code path is exercised through the
// sqlite backend's tests.
func TestDialectPlaceholders(t *testing.T) {
	d := dialect{}
	if got := d.Placeholder(1); got != "$1" {
		t.Fatalf("unexpected placeholder: %q", got)
	}
	if got := d.Placeholder(3); got != "$3" {
		t.Fatalf("unexpected placeholder: %q", got)
	}
	if got := d.DocPlaceholder(3); got != "$3::jsonb" {
		t.Fatalf("unexpected doc placeholder: %q", got)
	}
	if sql := d.CreateTableSQL(); sql == "" {
		t.Fatalf("expected non-empty create table statement")
	}
}
