package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/trickstertwo/xport/library"
)

var _ library.Database = (*Database)(nil)

// Database keeps books in a map owned by the adapter. Saving an ISBN that already
// exists replaces the stored book.
type Database struct {
	cfg Config

	mu    sync.RWMutex
	books map[string]library.Book
}

func NewDatabase(cfg Config) *Database {
	if cfg.Capacity < 1 {
		cfg.Capacity = 64
	}
	return &Database{cfg: cfg, books: make(map[string]library.Book, cfg.Capacity)}
}

// SetUp is a no-op; the store exists from construction.
func (d *Database) SetUp(context.Context) error { return nil }

func (d *Database) UnitOfWorkManager() library.UnitOfWorkManager { return manager{db: d} }

func (d *Database) View() library.BookView { return view{db: d} }

// Close drops every stored book.
func (d *Database) Close(context.Context) error {
	d.mu.Lock()
	d.books = make(map[string]library.Book, d.cfg.Capacity)
	d.mu.Unlock()
	return nil
}

// Len reports how many books are stored.
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.books)
}

type manager struct{ db *Database }

func (m manager) Start(context.Context) (library.UnitOfWork, error) {
	return library.NewStagedUnitOfWork(m.db.apply), nil
}

// apply stores books under the write lock, replacing existing ISBNs.
func (d *Database) apply(_ context.Context, books []library.Book) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range books {
		d.books[b.ISBN] = b
	}
	return nil
}

type view struct{ db *Database }

func (v view) All(context.Context) ([]library.Book, error) {
	return v.filter(func(library.Book) bool { return true }), nil
}

func (v view) ByISBN(_ context.Context, isbn string) (library.Book, error) {
	v.db.mu.RLock()
	defer v.db.mu.RUnlock()
	b, ok := v.db.books[isbn]
	if !ok {
		return library.Book{}, library.ErrBookNotFound
	}
	return b, nil
}

func (v view) ByName(_ context.Context, name string) ([]library.Book, error) {
	return v.filter(func(b library.Book) bool { return b.Name == name }), nil
}

func (v view) ByAuthor(_ context.Context, author string) ([]library.Book, error) {
	return v.filter(func(b library.Book) bool { return b.Author == author }), nil
}

// filter returns matches ordered by ISBN so results are stable.
func (v view) filter(keep func(library.Book) bool) []library.Book {
	v.db.mu.RLock()
	out := make([]library.Book, 0, len(v.db.books))
	for _, b := range v.db.books {
		if keep(b) {
			out = append(out, b)
		}
	}
	v.db.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out
}
