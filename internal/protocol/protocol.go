package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const Version = "1.0"

// Command types.
const (
	TypeMint     = "MINT"
	TypeBreed    = "BREED"
	TypeTransfer = "TRANSFER"
	TypeSetPrice = "SET_PRICE"
	TypeBuy      = "BUY"
)

// ErrInvalidCommand marks commands rejected before they reach the ledger.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one line of the command stream. Caller is the authenticated
// account the operation runs as.
type Command struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Caller string `json:"caller"`

	KittyID *uint32 `json:"kitty_id,omitempty"`
	Parent1 *uint32 `json:"parent1,omitempty"`
	Parent2 *uint32 `json:"parent2,omitempty"`

	// TRANSFER recipient.
	To string `json:"to,omitempty"`
	// BUY expected owner.
	Seller string `json:"seller,omitempty"`

	// SET_PRICE listing; nil erases it.
	Price  *decimal.Decimal `json:"price,omitempty"`
	MaxBid *decimal.Decimal `json:"max_bid,omitempty"`
}

// Check enforces the per-type required fields.
func (c Command) Check() error {
	if strings.TrimSpace(c.Caller) == "" {
		return fmt.Errorf("%w: missing caller", ErrInvalidCommand)
	}
	switch c.Type {
	case TypeMint:
	case TypeBreed:
		if c.Parent1 == nil || c.Parent2 == nil {
			return fmt.Errorf("%w: BREED needs parent1 and parent2", ErrInvalidCommand)
		}
	case TypeTransfer:
		if c.KittyID == nil || strings.TrimSpace(c.To) == "" {
			return fmt.Errorf("%w: TRANSFER needs kitty_id and to", ErrInvalidCommand)
		}
	case TypeSetPrice:
		if c.KittyID == nil {
			return fmt.Errorf("%w: SET_PRICE needs kitty_id", ErrInvalidCommand)
		}
		if c.Price != nil && c.Price.IsNegative() {
			return fmt.Errorf("%w: negative price", ErrInvalidCommand)
		}
	case TypeBuy:
		if c.KittyID == nil || strings.TrimSpace(c.Seller) == "" || c.MaxBid == nil {
			return fmt.Errorf("%w: BUY needs kitty_id, seller and max_bid", ErrInvalidCommand)
		}
		if c.MaxBid.IsNegative() {
			return fmt.Errorf("%w: negative max_bid", ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Type)
	}
	return nil
}

// Result reports the outcome of one command.
type Result struct {
	ID      string  `json:"id"`
	Cycle   uint64  `json:"cycle,omitempty"`
	OK      bool    `json:"ok"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message,omitempty"`
	KittyID *uint32 `json:"kitty_id,omitempty"`
	DNA     string  `json:"dna,omitempty"`
}

// DecodeCommand validates one JSON command line against the command schema
// and decodes it. A command without an id gets a fresh one.
func DecodeCommand(v *Validator, line []byte) (Command, error) {
	if v != nil {
		if err := v.ValidateJSON(SchemaCommand, line); err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	var c Command
	if err := json.Unmarshal(line, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}
