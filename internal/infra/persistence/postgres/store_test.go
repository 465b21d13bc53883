package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"

	"fieldlog/pkg/domain"
)

// stubConn is a minimal driver connection backing the single-bucket state
// table with an in-memory map. It records every exec for DDL assertions.
type stubConn struct {
	pingErr error
	execs   []string
	rows    map[string][]byte // bucket → payload
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("unused") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("unused") }

func (c *stubConn) Ping(context.Context) error { return c.pingErr }

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if strings.HasPrefix(strings.TrimSpace(strings.ToUpper(query)), "INSERT") {
		bucket := args[0].Value.(string)
		payload := append([]byte(nil), args[1].Value.([]byte)...)
		c.rows[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, _ string, args []driver.NamedValue) (driver.Rows, error) {
	payload, ok := c.rows[args[0].Value.(string)]
	return &stubRows{payload: payload, present: ok}, nil
}

type stubRows struct {
	payload []byte
	present bool
	done    bool
}

func (r *stubRows) Columns() []string { return []string{"payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.done || !r.present {
		return io.EOF
	}
	r.done = true
	dest[0] = r.payload
	return nil
}

type stubConnector struct{ conn *stubConn }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c stubConnector) Driver() driver.Driver                        { return nil }

func newStubStore(t *testing.T, conn *stubConn) *Store {
	t.Helper()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.OpenDB(stubConnector{conn: conn}), nil
	})
	t.Cleanup(restore)
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	conn := &stubConn{rows: map[string][]byte{}}
	newStubStore(t, conn)

	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got execs: %v", conn.execs)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	conn := &stubConn{rows: map[string][]byte{}}
	store := newStubStore(t, conn)

	empty, err := store.Load()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if empty.SchemaVersion != 0 || len(empty.Observations) != 0 {
		t.Fatalf("empty store yielded %+v", empty)
	}

	snap := domain.Snapshot{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Observations: []domain.Observation{
			{ID: "1733572800000", Comment: "two adults at the shore", SyncStatus: domain.SyncPending},
		},
		QueueAttempts: map[string]int{"1733572800000": 2},
		Tombstones:    []string{"srv-000001"},
		SyncCursor:    "2024-12-07T12:00:00Z",
	}
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SchemaVersion != snap.SchemaVersion || len(got.Observations) != 1 {
		t.Fatalf("snapshot = %+v", got)
	}
	if got.Observations[0].Comment != "two adults at the shore" {
		t.Fatalf("observation = %+v", got.Observations[0])
	}
	if got.QueueAttempts["1733572800000"] != 2 || len(got.Tombstones) != 1 || got.SyncCursor != snap.SyncCursor {
		t.Fatalf("bookkeeping lost: %+v", got)
	}
}

func TestNewStoreReportsUnreachableServer(t *testing.T) {
	conn := &stubConn{pingErr: errors.New("connection refused"), rows: map[string][]byte{}}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.OpenDB(stubConnector{conn: conn}), nil
	})
	defer restore()

	_, err := NewStore("")
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("err = %v, want ErrStorageUnavailable", err)
	}
}
