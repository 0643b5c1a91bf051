package library

import (
	"errors"

	"github.com/trickstertwo/xport"
)

// Wire subscribes every library handler on bus, backed by db and notifying senders.
func Wire(bus *xport.Bus, db Database, senders []xport.SenderAdapter) error {
	if bus == nil || db == nil {
		return errors.New("library: wire needs a bus and a database")
	}
	view := db.View()
	return errors.Join(
		xport.SubscribeCommand(bus, RegisterBookHandler(bus, db.UnitOfWorkManager())),
		xport.SubscribeEvent(bus, BookRegisteredHandler(view, senders...)),
		xport.SubscribeCommand(bus, ReadBookHandler(view)),
		xport.SubscribeCommand(bus, ViewBooksHandler(view)),
		xport.SubscribeCommand(bus, ViewBookByISBNHandler(view)),
		xport.SubscribeCommand(bus, ViewBooksByNameHandler(view)),
		xport.SubscribeCommand(bus, ViewBooksByAuthorHandler(view)),
	)
}
