package testutil

import (
	"context"
	"database/sql/driver"
	"testing"
)

func TestStubUpsertAndFilteredSelect(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	upsert := "INSERT INTO state_meta(key,version) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET version=EXCLUDED.version"
	for _, v := range []int64{1, 2} {
		if _, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "state"}, {Value: v}}); err != nil {
			t.Fatalf("ExecContext: %v", err)
		}
	}
	conn.SetRow("state_meta", "key", map[string]any{"key": "other", "version": int64(9)})
	if got := len(conn.Rows("state_meta")); got != 2 {
		t.Fatalf("expected 2 rows after upsert, got %d", got)
	}

	rows, err := conn.QueryContext(ctx, "SELECT key, version FROM state_meta WHERE key = $1", []driver.NamedValue{{Value: "state"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if dest[0] != "state" || dest[1] != int64(2) {
		t.Fatalf("unexpected row: %v", dest)
	}
	if err := rows.Next(dest); err == nil {
		t.Fatalf("expected a single filtered row")
	}
}

func TestStubRollbackRestoresTables(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.SetRow("state", "bucket", map[string]any{"bucket": "locations", "payload": []byte("{}")})

	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload",
		[]driver.NamedValue{{Value: "locations"}, {Value: []byte(`{"x":1}`)}}); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	rows := conn.Rows("state")
	if len(rows) != 1 || string(rows[0]["payload"].([]byte)) != "{}" {
		t.Fatalf("expected rollback to restore original payload, got %v", rows)
	}
}

func TestStubFailCommitDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailCommit = true
	tx, err := conn.BeginTx(ctx, driver.TxOptions{})
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO state(bucket,payload) VALUES($1,$2)", []driver.NamedValue{{Value: "a"}, {Value: []byte("1")}}); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected commit failure")
	}
	if rows := conn.Rows("state"); len(rows) != 0 {
		t.Fatalf("expected writes discarded, got %v", rows)
	}
}
