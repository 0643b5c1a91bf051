// Package sqlite stores library books in a SQLite file through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/trickstertwo/xport/library"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `CREATE TABLE IF NOT EXISTS books (
	isbn    TEXT PRIMARY KEY,
	name    TEXT NOT NULL,
	author  TEXT NOT NULL,
	content TEXT NOT NULL
)`

var (
	_ library.Database = (*Database)(nil)

	errNotSetUp = errors.New("sqlite database is not set up")
)

// Database saves books with insert-or-fail semantics: a second book with a known ISBN
// fails the commit with library.ErrBookAlreadyExists.
type Database struct {
	cfg Config

	mu sync.RWMutex
	db *sql.DB
}

func NewDatabase(cfg Config) (*Database, error) {
	if strings.TrimSpace(cfg.Location) == "" {
		return nil, fmt.Errorf("sqlite location is required")
	}
	return &Database{cfg: cfg}, nil
}

// SetUp opens the file and creates the books table when missing.
func (d *Database) SetUp(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db != nil {
		return nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		filepath.Clean(d.cfg.Location), d.cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}
	d.db = db
	return nil
}

func (d *Database) UnitOfWorkManager() library.UnitOfWorkManager { return manager{d: d} }

func (d *Database) View() library.BookView { return view{d: d} }

func (d *Database) Close(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func (d *Database) handle() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, errNotSetUp
	}
	return d.db, nil
}

type manager struct{ d *Database }

func (m manager) Start(context.Context) (library.UnitOfWork, error) {
	if _, err := m.d.handle(); err != nil {
		return nil, err
	}
	return library.NewStagedUnitOfWork(m.d.insert), nil
}

// insert writes books in one transaction, so units that never commit never hold the
// sqlite write lock.
func (d *Database) insert(ctx context.Context, books []library.Book) error {
	db, err := d.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, b := range books {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO books (isbn, name, author, content) VALUES (?, ?, ?, ?)`,
			b.ISBN, b.Name, b.Author, b.Content)
		if err != nil {
			_ = tx.Rollback()
			if isConstraintError(err) {
				return fmt.Errorf("%w: %s", library.ErrBookAlreadyExists, b.ISBN)
			}
			return fmt.Errorf("insert book %s: %w", b.ISBN, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type view struct{ d *Database }

func (v view) All(ctx context.Context) ([]library.Book, error) {
	return v.query(ctx, `SELECT isbn, name, author, content FROM books ORDER BY isbn`)
}

func (v view) ByISBN(ctx context.Context, isbn string) (library.Book, error) {
	db, err := v.d.handle()
	if err != nil {
		return library.Book{}, err
	}
	var b library.Book
	err = db.QueryRowContext(ctx,
		`SELECT isbn, name, author, content FROM books WHERE isbn = ?`, isbn,
	).Scan(&b.ISBN, &b.Name, &b.Author, &b.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return library.Book{}, library.ErrBookNotFound
	}
	if err != nil {
		return library.Book{}, fmt.Errorf("get book %s: %w", isbn, err)
	}
	return b, nil
}

func (v view) ByName(ctx context.Context, name string) ([]library.Book, error) {
	return v.query(ctx, `SELECT isbn, name, author, content FROM books WHERE name = ? ORDER BY isbn`, name)
}

func (v view) ByAuthor(ctx context.Context, author string) ([]library.Book, error) {
	return v.query(ctx, `SELECT isbn, name, author, content FROM books WHERE author = ? ORDER BY isbn`, author)
}

func (v view) query(ctx context.Context, q string, args ...any) ([]library.Book, error) {
	db, err := v.d.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := []library.Book{}
	for rows.Next() {
		var b library.Book
		if err := rows.Scan(&b.ISBN, &b.Name, &b.Author, &b.Content); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate books: %w", err)
	}
	return books, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}
