package library

import "errors"

var (
	ErrBookNotFound      = errors.New("library: book not found")
	ErrBookAlreadyExists = errors.New("library: isbn already registered")
	ErrInvalidBook       = errors.New("library: invalid book")
	// ErrUnknownCommand is returned when a transport names a command this package does not define.
	ErrUnknownCommand = errors.New("library: unknown command")
)
