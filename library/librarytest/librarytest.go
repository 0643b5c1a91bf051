// Package librarytest holds checks shared by every library.Database implementation and
// small fakes for handler tests.
package librarytest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xport"
	"github.com/trickstertwo/xport/library"
)

// Duplicates selects what a database does when an ISBN is saved twice.
type Duplicates int

const (
	// Replace keeps the newest book.
	Replace Duplicates = iota
	// Reject fails the commit with library.ErrBookAlreadyExists.
	Reject
)

var (
	Dune       = library.Book{ISBN: "978-0441013593", Name: "Dune", Author: "Frank Herbert", Content: "A beginning is the time..."}
	Messiah    = library.Book{ISBN: "978-0593098233", Name: "Dune Messiah", Author: "Frank Herbert", Content: "Paul is emperor."}
	Foundation = library.Book{ISBN: "978-0553293357", Name: "Foundation", Author: "Isaac Asimov", Content: "Hari Seldon..."}
)

// SaveAll stores books in one committed unit of work.
func SaveAll(t testing.TB, db library.Database, books ...library.Book) {
	t.Helper()
	err := xport.Run(context.Background(), db.UnitOfWorkManager(), func(ctx context.Context, repo library.BookRepository) error {
		for _, b := range books {
			if err := repo.Save(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// RunDatabase exercises the unit of work and view contract. newDB must return a
// database that is set up and empty.
func RunDatabase(t *testing.T, newDB func(t *testing.T) library.Database, dup Duplicates) {
	ctx := context.Background()

	t.Run("commit makes books visible", func(t *testing.T) {
		db := newDB(t)
		SaveAll(t, db, Dune, Foundation)

		got, err := db.View().ByISBN(ctx, Dune.ISBN)
		require.NoError(t, err)
		assert.Equal(t, Dune, got)

		all, err := db.View().All(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []library.Book{Dune, Foundation}, all)
	})

	t.Run("rollback discards staged books", func(t *testing.T) {
		db := newDB(t)
		uow, err := db.UnitOfWorkManager().Start(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.Repository().Save(ctx, Dune))
		require.NoError(t, uow.Rollback(ctx))
		require.NoError(t, uow.Close())

		_, err = db.View().ByISBN(ctx, Dune.ISBN)
		assert.ErrorIs(t, err, library.ErrBookNotFound)
	})

	t.Run("close without commit discards staged books", func(t *testing.T) {
		db := newDB(t)
		uow, err := db.UnitOfWorkManager().Start(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.Repository().Save(ctx, Dune))
		require.NoError(t, uow.Close())
		require.NoError(t, uow.Close(), "close is idempotent")

		all, err := db.View().All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("repository is unusable after close", func(t *testing.T) {
		db := newDB(t)
		uow, err := db.UnitOfWorkManager().Start(ctx)
		require.NoError(t, err)
		repo := uow.Repository()
		require.NoError(t, uow.Close())
		assert.ErrorIs(t, repo.Save(ctx, Dune), xport.ErrUnitOfWorkClosed)
	})

	t.Run("units of work are independent", func(t *testing.T) {
		db := newDB(t)
		first, err := db.UnitOfWorkManager().Start(ctx)
		require.NoError(t, err)
		defer first.Close()
		second, err := db.UnitOfWorkManager().Start(ctx)
		require.NoError(t, err)
		defer second.Close()

		require.NoError(t, first.Repository().Save(ctx, Dune))
		require.NoError(t, second.Repository().Save(ctx, Foundation))
		require.NoError(t, second.Commit(ctx))
		require.NoError(t, first.Rollback(ctx))

		_, err = db.View().ByISBN(ctx, Dune.ISBN)
		assert.ErrorIs(t, err, library.ErrBookNotFound)
		got, err := db.View().ByISBN(ctx, Foundation.ISBN)
		require.NoError(t, err)
		assert.Equal(t, Foundation, got)
	})

	t.Run("queries filter by name and author", func(t *testing.T) {
		db := newDB(t)
		SaveAll(t, db, Dune, Messiah, Foundation)

		byAuthor, err := db.View().ByAuthor(ctx, "Frank Herbert")
		require.NoError(t, err)
		assert.ElementsMatch(t, []library.Book{Dune, Messiah}, byAuthor)

		byName, err := db.View().ByName(ctx, "Foundation")
		require.NoError(t, err)
		assert.Equal(t, []library.Book{Foundation}, byName)

		none, err := db.View().ByAuthor(ctx, "Nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		db := newDB(t)
		SaveAll(t, db, Dune)
		changed := Dune
		changed.Content = "rewritten"

		err := xport.Run(ctx, db.UnitOfWorkManager(), func(ctx context.Context, repo library.BookRepository) error {
			return repo.Save(ctx, changed)
		})
		got, gerr := db.View().ByISBN(ctx, Dune.ISBN)
		require.NoError(t, gerr)

		switch dup {
		case Replace:
			require.NoError(t, err)
			assert.Equal(t, changed, got)
		case Reject:
			require.ErrorIs(t, err, library.ErrBookAlreadyExists)
			assert.Equal(t, Dune, got)
		}
	})
}

// Sender records every payload it is asked to send.
type Sender struct {
	mu       sync.Mutex
	Payloads []string
	Err      error
	Closed   bool
}

var _ xport.SenderAdapter = (*Sender)(nil)

func (s *Sender) Send(_ context.Context, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Payloads = append(s.Payloads, payload)
	return nil
}

func (s *Sender) Close(context.Context) error {
	s.mu.Lock()
	s.Closed = true
	s.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded payloads.
func (s *Sender) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Payloads...)
}
