package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xport"
)

// RegisterBookHandler stores the book in its own unit of work and, once committed,
// announces it with BookRegisteredEvent on bus. The registration stands even if an event
// handler fails afterwards; such failures are only logged.
func RegisterBookHandler(bus xport.Dispatcher, uowm UnitOfWorkManager) func(ctx context.Context, cmd RegisterBookCommand) (any, error) {
	return func(ctx context.Context, cmd RegisterBookCommand) (any, error) {
		book := cmd.Book()
		if err := book.Validate(); err != nil {
			return nil, err
		}

		err := xport.Run(ctx, uowm, func(ctx context.Context, repo BookRepository) error {
			return repo.Save(ctx, book)
		})
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", book.ISBN, err)
		}

		if _, err := bus.Handle(ctx, BookRegisteredEvent{ISBN: book.ISBN}); err != nil {
			loggerFrom(ctx).Warn().Err(err).Str("isbn", book.ISBN).Msg("book registered but notification failed")
		}
		return book, nil
	}
}

// BookRegisteredHandler loads the registered book and tells every sender about it.
func BookRegisteredHandler(view BookView, senders ...xport.SenderAdapter) func(ctx context.Context, evt BookRegisteredEvent) error {
	return func(ctx context.Context, evt BookRegisteredEvent) error {
		if len(senders) == 0 {
			return nil
		}
		book, err := view.ByISBN(ctx, evt.ISBN)
		if err != nil {
			return err
		}
		payload := book.String() + " has been successfully registered."

		var errs []error
		for _, s := range senders {
			if err := s.Send(ctx, payload); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}

// ReadBookHandler returns the content of the requested book.
func ReadBookHandler(view BookView) func(ctx context.Context, cmd ReadBookCommand) (any, error) {
	return func(ctx context.Context, cmd ReadBookCommand) (any, error) {
		book, err := view.ByISBN(ctx, cmd.ISBN)
		if err != nil {
			return nil, err
		}
		return book.Content, nil
	}
}

func ViewBooksHandler(view BookView) func(ctx context.Context, cmd ViewBooksCommand) (any, error) {
	return func(ctx context.Context, _ ViewBooksCommand) (any, error) {
		return view.All(ctx)
	}
}

func ViewBookByISBNHandler(view BookView) func(ctx context.Context, cmd ViewBookByISBNCommand) (any, error) {
	return func(ctx context.Context, cmd ViewBookByISBNCommand) (any, error) {
		return view.ByISBN(ctx, cmd.ISBN)
	}
}

func ViewBooksByNameHandler(view BookView) func(ctx context.Context, cmd ViewBooksByNameCommand) (any, error) {
	return func(ctx context.Context, cmd ViewBooksByNameCommand) (any, error) {
		return view.ByName(ctx, cmd.Name)
	}
}

func ViewBooksByAuthorHandler(view BookView) func(ctx context.Context, cmd ViewBooksByAuthorCommand) (any, error) {
	return func(ctx context.Context, cmd ViewBooksByAuthorCommand) (any, error) {
		return view.ByAuthor(ctx, cmd.Author)
	}
}

func loggerFrom(ctx context.Context) *xlog.Logger {
	if l, ok := xport.LoggerFromContext(ctx); ok {
		return l
	}
	return xlog.Default()
}
