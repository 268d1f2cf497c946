// Package memory provides the in-memory persistence store. Every
// transaction works on a private copy of the state under a single writer
// lock, so transactions are serializable and a failed one leaves nothing
// behind. The sqlite and postgres backends embed this store and persist
// through its commit hook.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"locationcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// CommitHook runs after rules pass and before the new state becomes
// visible. A hook error aborts the commit. The snapshot shares memory with
// the pending state and must not be retained or modified.
type CommitHook func(ctx context.Context, snapshot Snapshot, changes []domain.Change) error

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithCommitHook registers the hook invoked for every successful commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.hook = hook }
}

type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// RunInTransaction applies fn to a private copy of the state, evaluates the
// rules against the result and then swaps the copy in. Errors from fn, a
// blocking violation or a failing commit hook discard the copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	res, err := s.engine.Evaluate(ctx, newView(&tx.state), tx.changes)
	if err != nil {
		return domain.Result{}, fmt.Errorf("evaluate rules: %w", err)
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, tx.state.shared(), tx.changes); err != nil {
			return domain.Result{}, err
		}
	}
	s.state = tx.state
	res.Changes = tx.changes
	return res, nil
}

// View runs fn against the committed state. The view must not be retained
// after fn returns.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newView(&s.state))
}
