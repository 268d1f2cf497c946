// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics and persists touched buckets before each commit.
// A version row tracks writers in other processes: every operation compares
// it with the loaded version and reloads the state when they differ, and a
// commit that still races another writer fails with a concurrent modification
// conflict.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"locationcore/internal/infra/persistence/memory"
	"locationcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/locationcore?sslmode=disable"
	versionKey    = "state"
	// advisoryLockID serialises snapshot writers across processes.
	advisoryLockID = 7326401
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db      *sql.DB
	version atomic.Int64
	stale   atomic.Bool
	// reload is held exclusively while state is replaced and shared by
	// running transactions and views.
	reload sync.RWMutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// ensures its tables exist and hydrates the in-memory state.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTables(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// RunInTransaction reloads state first when another process has committed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	if err := s.sync(ctx); err != nil {
		return domain.Result{}, err
	}
	s.reload.RLock()
	defer s.reload.RUnlock()
	return s.Store.RunInTransaction(ctx, fn)
}

// View reads committed state, reloading it first when another process has
// committed.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := s.sync(ctx); err != nil {
		return err
	}
	s.reload.RLock()
	defer s.reload.RUnlock()
	return s.Store.View(ctx, fn)
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureTables(ctx context.Context, db *sql.DB) error {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS state (
			bucket TEXT PRIMARY KEY,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS state_meta (
			key TEXT PRIMARY KEY,
			version BIGINT NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure tables: %w", err)
		}
	}
	return nil
}

// sync compares the shared version with the loaded one and reloads the
// snapshot when another writer moved it.
func (s *Store) sync(ctx context.Context) error {
	current, err := readVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if current == s.version.Load() && !s.stale.Load() {
		return nil
	}
	s.reload.Lock()
	defer s.reload.Unlock()
	if current == s.version.Load() && !s.stale.Load() {
		return nil
	}
	return s.refresh(ctx)
}

func (s *Store) refresh(ctx context.Context) error {
	version, err := readVersion(ctx, s.db)
	if err != nil {
		return err
	}
	snapshot, err := loadSnapshot(ctx, s.db)
	if err != nil {
		return err
	}
	s.ImportState(snapshot)
	s.version.Store(version)
	s.stale.Store(false)
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readVersion(ctx context.Context, q queryer) (int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, version FROM state_meta WHERE key = $1`, versionKey)
	if err != nil {
		return 0, fmt.Errorf("select version: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var version int64
	for rows.Next() {
		var key string
		if err := rows.Scan(&key, &version); err != nil {
			return 0, fmt.Errorf("scan version: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate version: %w", err)
	}
	return version, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var (
			bucket  string
			payload []byte
		)
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := snapshot.UnmarshalBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

// ErrStaleState is wrapped into the conflict returned when another process
// committed first.
var ErrStaleState = errors.New("postgres state changed by another writer")

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	current, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}
	expected := s.version.Load()
	if current != expected {
		s.stale.Store(true)
		return domain.WrapError(ErrStaleState, domain.CodeConflict, domain.ReasonConcurrentModification,
			"state version %d does not match expected %d", current, expected)
	}
	for _, bucket := range memory.TouchedBuckets(changes) {
		data, err := snapshot.MarshalBucket(bucket)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	next := expected + 1
	if _, err := tx.ExecContext(ctx, `INSERT INTO state_meta(key,version) VALUES($1,$2) ON CONFLICT(key) DO UPDATE SET version=EXCLUDED.version`, versionKey, next); err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	s.version.Store(next)
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
