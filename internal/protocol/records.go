package protocol

import (
	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/ledger"
)

// NotificationRecord is the logged form of a ledger notification. Seq orders
// records within a cycle.
type NotificationRecord struct {
	Cycle   uint64           `json:"cycle"`
	Seq     int              `json:"seq"`
	Kind    string           `json:"kind"`
	Owner   string           `json:"owner,omitempty"`
	From    string           `json:"from,omitempty"`
	To      string           `json:"to,omitempty"`
	KittyID uint32           `json:"kitty_id"`
	Kitty   string           `json:"kitty,omitempty"`
	Mother  string           `json:"mother,omitempty"`
	Father  string           `json:"father,omitempty"`
	Price   *decimal.Decimal `json:"price,omitempty"`
}

func NewNotificationRecord(cycle uint64, seq int, n ledger.Notification) NotificationRecord {
	r := NotificationRecord{
		Cycle:   cycle,
		Seq:     seq,
		Kind:    string(n.Kind),
		Owner:   string(n.Owner),
		From:    string(n.From),
		To:      string(n.To),
		KittyID: uint32(n.KittyID),
		Price:   n.Price,
	}
	// PRICE_SET carries no DNA.
	if n.Kind != ledger.KindPriceSet {
		r.Kitty = n.Kitty.String()
	}
	if n.Mother != nil {
		r.Mother = n.Mother.String()
	}
	if n.Father != nil {
		r.Father = n.Father.String()
	}
	return r
}

// CycleLogEntry records one processing cycle: the seed it drew, the commands
// it ran in order and the ledger digest after the last one.
type CycleLogEntry struct {
	Cycle    uint64    `json:"cycle"`
	Seed     string    `json:"seed"`
	Commands []Command `json:"commands"`
	Results  []Result  `json:"results"`
	Digest   string    `json:"digest"`
}
