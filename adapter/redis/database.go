package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xport/library"
)

// Hash fields of a stored book.
const (
	fieldISBN    = "isbn"
	fieldName    = "name"
	fieldAuthor  = "author"
	fieldContent = "content"
)

// commitAttempts bounds optimistic retries when a watched key changes under a commit.
const commitAttempts = 3

var _ library.Database = (*Database)(nil)

// Database stores books as redis hashes with insert-or-fail semantics.
type Database struct {
	cfg    Config
	client *goredis.Client
}

func NewDatabase(cfg Config) (*Database, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("config: addr required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "library"
	}
	return &Database{cfg: cfg, client: newClient(cfg)}, nil
}

// SetUp checks the server is reachable. Keys are created on first write.
func (d *Database) SetUp(ctx context.Context) error {
	return ping(ctx, d.client)
}

func (d *Database) UnitOfWorkManager() library.UnitOfWorkManager { return manager{d: d} }

func (d *Database) View() library.BookView { return view{d: d} }

func (d *Database) Close(context.Context) error {
	err := d.client.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

func (d *Database) bookKey(isbn string) string { return d.cfg.KeyPrefix + ":book:" + isbn }

func (d *Database) indexKey() string { return d.cfg.KeyPrefix + ":books" }

type manager struct{ d *Database }

func (m manager) Start(context.Context) (library.UnitOfWork, error) {
	return library.NewStagedUnitOfWork(m.d.insert), nil
}

// insert writes books in one MULTI/EXEC guarded by WATCH on their keys.
func (d *Database) insert(ctx context.Context, books []library.Book) error {
	keys := make([]string, 0, len(books))
	seen := make(map[string]struct{}, len(books))
	for _, b := range books {
		if _, dup := seen[b.ISBN]; dup {
			return fmt.Errorf("%w: %s", library.ErrBookAlreadyExists, b.ISBN)
		}
		seen[b.ISBN] = struct{}{}
		keys = append(keys, d.bookKey(b.ISBN))
	}

	txf := func(tx *goredis.Tx) error {
		for i, key := range keys {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %s", library.ErrBookAlreadyExists, books[i].ISBN)
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for i, b := range books {
				pipe.HSet(ctx, keys[i],
					fieldISBN, b.ISBN,
					fieldName, b.Name,
					fieldAuthor, b.Author,
					fieldContent, b.Content,
				)
				pipe.SAdd(ctx, d.indexKey(), b.ISBN)
			}
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < commitAttempts; attempt++ {
		err = d.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("commit books: %w", err)
}

type view struct{ d *Database }

func (v view) All(ctx context.Context) ([]library.Book, error) {
	return v.filter(ctx, func(library.Book) bool { return true })
}

func (v view) ByISBN(ctx context.Context, isbn string) (library.Book, error) {
	fields, err := v.d.client.HGetAll(ctx, v.d.bookKey(isbn)).Result()
	if err != nil {
		return library.Book{}, fmt.Errorf("get book %s: %w", isbn, err)
	}
	if len(fields) == 0 {
		return library.Book{}, library.ErrBookNotFound
	}
	return bookFromHash(fields), nil
}

func (v view) ByName(ctx context.Context, name string) ([]library.Book, error) {
	return v.filter(ctx, func(b library.Book) bool { return b.Name == name })
}

func (v view) ByAuthor(ctx context.Context, author string) ([]library.Book, error) {
	return v.filter(ctx, func(b library.Book) bool { return b.Author == author })
}

// filter loads every indexed book in one pipeline and keeps the matches, ordered by ISBN.
func (v view) filter(ctx context.Context, keep func(library.Book) bool) ([]library.Book, error) {
	isbns, err := v.d.client.SMembers(ctx, v.d.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	sort.Strings(isbns)

	books := []library.Book{}
	if len(isbns) == 0 {
		return books, nil
	}

	pipe := v.d.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(isbns))
	for i, isbn := range isbns {
		cmds[i] = pipe.HGetAll(ctx, v.d.bookKey(isbn))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		if b := bookFromHash(fields); keep(b) {
			books = append(books, b)
		}
	}
	return books, nil
}

func bookFromHash(fields map[string]string) library.Book {
	return library.Book{
		ISBN:    fields[fieldISBN],
		Name:    fields[fieldName],
		Author:  fields[fieldAuthor],
		Content: fields[fieldContent],
	}
}
