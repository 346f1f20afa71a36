package ledger

import (
	"errors"
	"fmt"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger/kv"
)

var (
	ErrIDOverflow   = errors.New("kitty id space exhausted")
	ErrNotOwned     = errors.New("kitty not owned by account")
	ErrNotForSale   = errors.New("kitty not for sale")
	ErrPriceTooLow  = errors.New("bid below listed price")
	ErrOwnerTooLong = fmt.Errorf("owner longer than %d bytes", kv.MaxOwnerLen)

	ErrIncompatibleGenders = genetics.ErrIncompatibleGenders
)
