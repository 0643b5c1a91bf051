package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/adapter/sqlite"
	"github.com/trickstertwo/xport/library"
	"github.com/trickstertwo/xport/library/librarytest"
)

func newDatabase(t *testing.T) library.Database {
	t.Helper()
	db, err := sqlite.NewDatabase(sqlite.Config{Location: filepath.Join(t.TempDir(), "books.db")})
	require.NoError(t, err)
	require.NoError(t, db.SetUp(context.Background()))
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return db
}

func TestDatabaseContract(t *testing.T) {
	librarytest.RunDatabase(t, newDatabase, librarytest.Reject)
}

func TestSetUp_IsIdempotentAndPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "books.db")

	first, err := sqlite.NewDatabase(sqlite.Config{Location: path})
	require.NoError(t, err)
	require.NoError(t, first.SetUp(ctx))
	require.NoError(t, first.SetUp(ctx))
	librarytest.SaveAll(t, first, librarytest.Dune)
	require.NoError(t, first.Close(ctx))

	second, err := sqlite.NewDatabase(sqlite.Config{Location: path})
	require.NoError(t, err)
	require.NoError(t, second.SetUp(ctx))
	defer second.Close(ctx)

	got, err := second.View().ByISBN(ctx, librarytest.Dune.ISBN)
	require.NoError(t, err)
	assert.Equal(t, librarytest.Dune, got)
}

func TestStart_RequiresSetUp(t *testing.T) {
	db, err := sqlite.NewDatabase(sqlite.Config{Location: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	_, err = db.UnitOfWorkManager().Start(context.Background())
	assert.Error(t, err)
}

func TestFailedCommit_WritesNothing(t *testing.T) {
	ctx := context.Background()
	db := newDatabase(t)
	librarytest.SaveAll(t, db, librarytest.Dune)

	err := xport.Run(ctx, db.UnitOfWorkManager(), func(ctx context.Context, repo library.BookRepository) error {
		require.NoError(t, repo.Save(ctx, librarytest.Foundation))
		return repo.Save(ctx, librarytest.Dune)
	})
	var uowErr *xport.UnitOfWorkError
	require.ErrorAs(t, err, &uowErr)
	assert.Equal(t, "commit", uowErr.Op)

	_, err = db.View().ByISBN(ctx, librarytest.Foundation.ISBN)
	assert.ErrorIs(t, err, library.ErrBookNotFound)
}

func TestNewDatabase_RejectsEmptyLocation(t *testing.T) {
	_, err := sqlite.NewDatabase(sqlite.Config{Location: "  "})
	assert.Error(t, err)
}

func TestRegister_UsesEnvironment(t *testing.T) {
	t.Setenv("SQLITE_LOCATION", filepath.Join(t.TempDir(), "env.db"))
	reg := xport.NewRegistry()
	require.NoError(t, sqlite.Register(reg))

	db, err := xport.Resolve[library.Database](xport.NewDirector(reg, nil), "sqlite", xport.ContextDatabase)
	require.NoError(t, err)
	require.NoError(t, db.SetUp(context.Background()))
	require.NoError(t, db.Close(context.Background()))
}
