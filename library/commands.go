package library

import (
	"fmt"
	"strings"

	"github.com/trickstertwo/xport"
)

// Command names used by topic and stream based transports.
const (
	CommandRegister = "register"
	CommandRead     = "read"
	CommandBooks    = "books"
	CommandByISBN   = "isbn"
	CommandByName   = "name"
	CommandByAuthor = "author"
)

// DecodeCommand turns a transport payload into the command called name. name may be a
// full topic; its last path segment is used.
func DecodeCommand(c xport.Codec, name string, payload []byte) (xport.Message, error) {
	if i := strings.LastIndexAny(name, "/."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var (
		msg xport.Message
		err error
	)
	switch name {
	case CommandRegister:
		msg, err = xport.Decode[RegisterBookCommand](c, payload)
	case CommandRead:
		msg, err = xport.Decode[ReadBookCommand](c, payload)
	case CommandBooks:
		msg, err = xport.Decode[ViewBooksCommand](c, payload)
	case CommandByISBN:
		msg, err = xport.Decode[ViewBookByISBNCommand](c, payload)
	case CommandByName:
		msg, err = xport.Decode[ViewBooksByNameCommand](c, payload)
	case CommandByAuthor:
		msg, err = xport.Decode[ViewBooksByAuthorCommand](c, payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if err != nil {
		return nil, fmt.Errorf("library: decode %s: %w", name, err)
	}
	return msg, nil
}
