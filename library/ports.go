package library

import (
	"context"

	"github.com/trickstertwo/xport"
)

// BookRepository is the mutation side, only reachable through a unit of work.
type BookRepository interface {
	Save(ctx context.Context, book Book) error
}

// BookView is the read side. ByISBN returns ErrBookNotFound for unknown books; the list
// queries return an empty slice when nothing matches.
type BookView interface {
	All(ctx context.Context) ([]Book, error)
	ByISBN(ctx context.Context, isbn string) (Book, error)
	ByName(ctx context.Context, name string) ([]Book, error)
	ByAuthor(ctx context.Context, author string) ([]Book, error)
}

type (
	UnitOfWork        = xport.UnitOfWork[BookRepository]
	UnitOfWorkManager = xport.UnitOfWorkManager[BookRepository]
	Database          = xport.DatabaseAdapter[BookRepository, BookView]
	Interface         = xport.InterfaceAdapter[BookView]
)

// NewStagedUnitOfWork returns a unit of work whose Save stages books and whose Commit
// passes them to write in one call.
func NewStagedUnitOfWork(write func(ctx context.Context, books []Book) error) UnitOfWork {
	return stagedUnitOfWork{xport.NewStagedUnit(write)}
}

type stagedUnitOfWork struct{ *xport.StagedUnit[Book] }

func (u stagedUnitOfWork) Repository() BookRepository { return stagedRepository{u.StagedUnit} }

type stagedRepository struct{ unit *xport.StagedUnit[Book] }

func (r stagedRepository) Save(_ context.Context, book Book) error { return r.unit.Stage(book) }
