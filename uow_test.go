package xport_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
)

type scriptedUnit struct {
	calls       []string
	commitErr   error
	rollbackErr error
	closeErr    error
}

func (u *scriptedUnit) Repository() *scriptedUnit { return u }

func (u *scriptedUnit) Commit(context.Context) error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *scriptedUnit) Rollback(context.Context) error {
	u.calls = append(u.calls, "rollback")
	return u.rollbackErr
}

func (u *scriptedUnit) Close() error {
	u.calls = append(u.calls, "close")
	return u.closeErr
}

type scriptedManager struct {
	unit     *scriptedUnit
	startErr error
}

func (m scriptedManager) Start(context.Context) (xport.UnitOfWork[*scriptedUnit], error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	return m.unit, nil
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	u := &scriptedUnit{}
	err := xport.Run(context.Background(), scriptedManager{unit: u}, func(_ context.Context, repo *scriptedUnit) error {
		repo.calls = append(repo.calls, "save")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"save", "commit", "close"}, u.calls)
}

func TestRun_RollsBackOnError(t *testing.T) {
	u := &scriptedUnit{rollbackErr: errors.New("rollback broke")}
	fnErr := errors.New("invalid")
	err := xport.Run(context.Background(), scriptedManager{unit: u}, func(context.Context, *scriptedUnit) error { return fnErr })

	assert.ErrorIs(t, err, fnErr)
	var uowErr *xport.UnitOfWorkError
	require.ErrorAs(t, err, &uowErr)
	assert.Equal(t, "rollback", uowErr.Op)
	assert.Equal(t, []string{"rollback", "close"}, u.calls)
}

func TestRun_CommitFailureKeepsCloseFailure(t *testing.T) {
	commitErr := errors.New("conflict")
	closeErr := errors.New("close broke")
	u := &scriptedUnit{commitErr: commitErr, closeErr: closeErr}
	err := xport.Run(context.Background(), scriptedManager{unit: u}, func(context.Context, *scriptedUnit) error { return nil })

	assert.ErrorIs(t, err, commitErr)
	assert.ErrorIs(t, err, closeErr)
	var uowErr *xport.UnitOfWorkError
	require.ErrorAs(t, err, &uowErr)
	assert.Equal(t, "commit", uowErr.Op)
}

func TestRun_ClosesOnPanic(t *testing.T) {
	u := &scriptedUnit{}
	assert.Panics(t, func() {
		_ = xport.Run(context.Background(), scriptedManager{unit: u}, func(context.Context, *scriptedUnit) error { panic("boom") })
	})
	assert.Equal(t, []string{"close"}, u.calls)
}

func TestRun_StartFailure(t *testing.T) {
	startErr := errors.New("pool exhausted")
	err := xport.Run(context.Background(), scriptedManager{startErr: startErr}, func(context.Context, *scriptedUnit) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, startErr)
}

func TestTxState(t *testing.T) {
	var s xport.TxState
	assert.NoError(t, s.Check())
	assert.True(t, s.Pending())
	s.Finish()
	assert.False(t, s.Pending())
	assert.True(t, s.Release())
	assert.False(t, s.Release())
	assert.ErrorIs(t, s.Check(), xport.ErrUnitOfWorkClosed)
}

func TestStagedUnit_CommitWritesBatchOnce(t *testing.T) {
	ctx := context.Background()
	var writes [][]string
	u := xport.NewStagedUnit(func(_ context.Context, items []string) error {
		writes = append(writes, append([]string(nil), items...))
		return nil
	})
	require.NoError(t, u.Stage("a"))
	require.NoError(t, u.Stage("b"))
	require.NoError(t, u.Commit(ctx))
	assert.Equal(t, [][]string{{"a", "b"}}, writes)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	assert.ErrorIs(t, u.Stage("c"), xport.ErrUnitOfWorkClosed)
	assert.ErrorIs(t, u.Commit(ctx), xport.ErrUnitOfWorkClosed)
	assert.ErrorIs(t, u.Rollback(ctx), xport.ErrUnitOfWorkClosed)
}

func TestStagedUnit_EmptyCommitSkipsWrite(t *testing.T) {
	called := false
	u := xport.NewStagedUnit(func(context.Context, []int) error {
		called = true
		return nil
	})
	require.NoError(t, u.Commit(context.Background()))
	assert.False(t, called)
}

func TestStagedUnit_FailedWriteCanBeRolledBack(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	var calls int
	u := xport.NewStagedUnit(func(context.Context, []int) error {
		calls++
		return boom
	})
	require.NoError(t, u.Stage(1))
	assert.ErrorIs(t, u.Commit(ctx), boom)
	require.NoError(t, u.Rollback(ctx))
	require.NoError(t, u.Commit(ctx), "rollback discarded the batch")
	assert.Equal(t, 1, calls)
}
