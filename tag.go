package xport

import (
	"fmt"
	"strings"
)

// Context is the place an adapter plugs into the application.
type Context string

const (
	ContextDatabase  Context = "database"
	ContextInterface Context = "interface"
	ContextSender    Context = "sender"
)

// Valid reports whether c is one of the known contexts.
func (c Context) Valid() bool {
	switch c {
	case ContextDatabase, ContextInterface, ContextSender:
		return true
	}
	return false
}

// ParseContext parses a context name, case-insensitively.
func ParseContext(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("xport: unknown context %q", s)
	}
	return c, nil
}

// Tag identifies what an adapter or builder implements and where it plugs in.
type Tag struct {
	Technology string
	Context    Context
}

// NewTag normalizes the technology name so lookups are case-insensitive.
func NewTag(technology string, ctx Context) Tag {
	return Tag{Technology: strings.ToLower(strings.TrimSpace(technology)), Context: ctx}
}

func (t Tag) String() string { return t.Technology + "/" + string(t.Context) }

func (t Tag) validate() error {
	if t.Technology == "" {
		return fmt.Errorf("xport: tag technology must not be empty")
	}
	if !t.Context.Valid() {
		return fmt.Errorf("xport: tag %s has unknown context", t)
	}
	return nil
}
