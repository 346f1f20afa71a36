package ledger

import (
	"sync"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/model"
)

type Kind string

const (
	KindCreated     Kind = "CREATED"
	KindBred        Kind = "BRED"
	KindTransferred Kind = "TRANSFERRED"
	KindPriceSet    Kind = "PRICE_SET"
	KindBought      Kind = "BOUGHT"
)

// Notification is one record of a successful operation. Which fields are set
// depends on Kind:
//
//	CREATED      Owner, KittyID, Kitty
//	BRED         Owner, KittyID, Kitty, Mother, Father
//	TRANSFERRED  From, To, KittyID, Kitty
//	PRICE_SET    Owner, KittyID, Price (nil when the listing was erased)
//	BOUGHT       From (seller), To (buyer), KittyID, Price
type Notification struct {
	Kind    Kind
	Owner   model.AccountID
	From    model.AccountID
	To      model.AccountID
	KittyID model.KittyID
	Kitty   genetics.DNA
	Mother  *genetics.DNA
	Father  *genetics.DNA
	Price   *decimal.Decimal
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Fanout delivers every notification to each sink in order.
type Fanout []Notifier

func (f Fanout) Notify(n Notification) {
	for _, s := range f {
		if s != nil {
			s.Notify(n)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}

// Journal is an append-only in-memory sink.
type Journal struct {
	mu  sync.Mutex
	all []Notification
}

func (j *Journal) Notify(n Notification) {
	j.mu.Lock()
	j.all = append(j.all, n)
	j.mu.Unlock()
}

func (j *Journal) All() []Notification {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Notification(nil), j.all...)
}

func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.all)
}

// Drain returns everything recorded so far and resets the journal.
func (j *Journal) Drain() []Notification {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.all
	j.all = nil
	return out
}
