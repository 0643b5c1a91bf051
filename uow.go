package xport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// UnitOfWork is a scoped transaction over the repository R. It is owned by one
// goroutine for its whole life and must be closed by that owner.
type UnitOfWork[R any] interface {
	// Repository returns the mutation side bound to this unit. It must not be used
	// after Close.
	Repository() R
	// Commit persists every mutation made through Repository.
	Commit(ctx context.Context) error
	// Rollback discards them.
	Rollback(ctx context.Context) error
	// Close releases the resource context. Uncommitted work is discarded. Close is
	// idempotent.
	Close() error
}

// UnitOfWorkManager starts independent units of work.
type UnitOfWorkManager[R any] interface {
	Start(ctx context.Context) (UnitOfWork[R], error)
}

// Run executes fn inside a fresh unit of work. The unit is committed when fn returns nil
// and rolled back otherwise; it is released on every exit path, panics included.
// Commit and rollback failures are wrapped in *UnitOfWorkError and joined with any
// release failure, never replaced by it.
func Run[R any](ctx context.Context, m UnitOfWorkManager[R], fn func(ctx context.Context, repo R) error) (err error) {
	uow, err := m.Start(ctx)
	if err != nil {
		return fmt.Errorf("xport: start unit of work: %w", err)
	}
	defer func() {
		if cerr := uow.Close(); cerr != nil {
			err = errors.Join(err, &UnitOfWorkError{Op: "close", Err: cerr})
		}
	}()

	if ferr := fn(ctx, uow.Repository()); ferr != nil {
		if rerr := uow.Rollback(ctx); rerr != nil {
			return errors.Join(ferr, &UnitOfWorkError{Op: "rollback", Err: rerr})
		}
		return ferr
	}

	if cerr := uow.Commit(ctx); cerr != nil {
		return &UnitOfWorkError{Op: "commit", Err: cerr}
	}
	return nil
}

// TxState is the bookkeeping shared by unit of work implementations: it remembers
// whether the unit was committed and makes Close idempotent.
type TxState struct {
	done   bool
	closed bool
}

// Check fails once the unit has been closed.
func (s *TxState) Check() error {
	if s.closed {
		return ErrUnitOfWorkClosed
	}
	return nil
}

// Finish marks the unit as committed or rolled back.
func (s *TxState) Finish() { s.done = true }

// Pending reports whether neither Commit nor Rollback completed yet.
func (s *TxState) Pending() bool { return !s.done }

// Release marks the unit closed and reports whether this was the first call.
func (s *TxState) Release() bool {
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// StagedUnit buffers items and hands them to one write call on Commit. Adapters whose
// store takes a whole batch at once build their unit of work on it.
type StagedUnit[T any] struct {
	mu     sync.Mutex
	state  TxState
	staged []T
	write  func(ctx context.Context, items []T) error
}

// NewStagedUnit returns a unit that calls write with the staged items on Commit. write is
// not called when nothing was staged.
func NewStagedUnit[T any](write func(ctx context.Context, items []T) error) *StagedUnit[T] {
	return &StagedUnit[T]{write: write}
}

// Stage buffers item until Commit.
func (u *StagedUnit[T]) Stage(item T) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.state.Check(); err != nil {
		return err
	}
	u.staged = append(u.staged, item)
	return nil
}

// Commit writes the staged items. A failed write keeps them staged and the unit pending.
func (u *StagedUnit[T]) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.state.Check(); err != nil {
		return err
	}
	if len(u.staged) > 0 && u.write != nil {
		if err := u.write(ctx, u.staged); err != nil {
			return err
		}
	}
	u.staged = nil
	u.state.Finish()
	return nil
}

func (u *StagedUnit[T]) Rollback(context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.state.Check(); err != nil {
		return err
	}
	u.staged = nil
	u.state.Finish()
	return nil
}

func (u *StagedUnit[T]) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state.Release() {
		u.staged = nil
	}
	return nil
}
