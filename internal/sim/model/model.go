// Package model holds the identifiers shared by the ledger, the currency and the wire protocol.
package model

import (
	"fmt"
	"math"
)

type AccountID string

// KittyID is allocated by the ledger counter and never reused.
type KittyID uint32

// MaxKittyID is the counter value at which allocation fails.
const MaxKittyID = KittyID(math.MaxUint32)

func (id KittyID) String() string { return fmt.Sprintf("%d", uint32(id)) }

// Lineage is written once when a kitty is bred.
type Lineage struct {
	Mother KittyID `json:"mother"`
	Father KittyID `json:"father"`
}
