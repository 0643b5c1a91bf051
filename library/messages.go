package library

import (
	"github.com/trickstertwo/xport"
)

// RegisterBookCommand stores a new book. Its result is the stored Book.
type RegisterBookCommand struct {
	xport.Command
	ISBN    string `json:"isbn"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Book builds the book described by the command.
func (c RegisterBookCommand) Book() Book {
	return Book{ISBN: c.ISBN, Name: c.Name, Author: c.Author, Content: c.Content}
}

// ReadBookCommand returns the content of one book.
type ReadBookCommand struct {
	xport.Command
	ISBN string `json:"isbn"`
}

// ViewBooksCommand lists every book.
type ViewBooksCommand struct {
	xport.Command
}

type ViewBookByISBNCommand struct {
	xport.Command
	ISBN string `json:"isbn"`
}

type ViewBooksByNameCommand struct {
	xport.Command
	Name string `json:"name"`
}

type ViewBooksByAuthorCommand struct {
	xport.Command
	Author string `json:"author"`
}

// BookRegisteredEvent is emitted once a registration has been committed.
type BookRegisteredEvent struct {
	xport.Event
	ISBN string `json:"isbn"`
}
