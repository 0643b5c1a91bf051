package xport

import "reflect"

// Kind separates commands from events. The set is closed: a type can only become a
// Message by embedding Command or Event.
type Kind uint8

const (
	KindCommand Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Message is either a command or an event. Its identity is its Go type.
type Message interface {
	MessageKind() Kind
	sealed()
}

// Command is embedded by imperative requests. A command has exactly one handler.
type Command struct{}

func (Command) MessageKind() Kind { return KindCommand }
func (Command) sealed()           {}

// Event is embedded by notifications. An event has zero or more handlers.
type Event struct{}

func (Event) MessageKind() Kind { return KindEvent }
func (Event) sealed()           {}

// MessageName returns the type name used in logs and errors.
func MessageName(msg Message) string {
	if msg == nil {
		return "<nil>"
	}
	return messageType(msg).String()
}

// messageType strips pointers so that T and *T share one subscription.
func messageType(msg Message) reflect.Type {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// isNil catches typed nil pointers as well as a nil interface.
func isNil(msg Message) bool {
	if msg == nil {
		return true
	}
	v := reflect.ValueOf(msg)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// sampleOf returns a non-nil M to read the kind from. Pointer types are allocated; an
// interface type has no usable sample.
func sampleOf[M Message]() (M, bool) {
	var zero M
	switch t := reflect.TypeFor[M](); t.Kind() {
	case reflect.Pointer:
		return reflect.New(t.Elem()).Interface().(M), true
	case reflect.Interface:
		return zero, false
	default:
		return zero, true
	}
}
