// Package library is the sample application served by xport: a catalogue of books that
// can be registered and queried through any configured interface adapter.
package library

import (
	"fmt"
	"strings"
)

// Book is identified by its ISBN.
type Book struct {
	ISBN    string `json:"isbn"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

func (b Book) String() string {
	return fmt.Sprintf("My name is %s, a book written by %s with ISBN: %s. Here is my content: %s",
		b.Name, b.Author, b.ISBN, b.Content)
}

// Validate rejects books that cannot be stored.
func (b Book) Validate() error {
	if strings.TrimSpace(b.ISBN) == "" {
		return fmt.Errorf("%w: isbn is required", ErrInvalidBook)
	}
	return nil
}
