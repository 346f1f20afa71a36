package protocol

import (
	"errors"

	"kittyledger.dev/internal/sim/currency"
	"kittyledger.dev/internal/sim/ledger"
)

const (
	// Command validation.
	ErrBadRequest = "E_BAD_REQUEST"

	// Ledger.
	ErrIDOverflow          = "E_ID_OVERFLOW"
	ErrNotOwned            = "E_NOT_OWNED"
	ErrIncompatibleGenders = "E_INCOMPATIBLE_GENDERS"
	ErrNotForSale          = "E_NOT_FOR_SALE"
	ErrPriceTooLow         = "E_PRICE_TOO_LOW"

	// Currency.
	ErrInsufficientBalance     = "E_INSUFFICIENT_BALANCE"
	ErrWouldDropBelowMinimum   = "E_WOULD_DROP_BELOW_MINIMUM"
	ErrBelowExistentialDeposit = "E_BELOW_EXISTENTIAL_DEPOSIT"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:              {},
	ErrIDOverflow:              {},
	ErrNotOwned:                {},
	ErrIncompatibleGenders:     {},
	ErrNotForSale:              {},
	ErrPriceTooLow:             {},
	ErrInsufficientBalance:     {},
	ErrWouldDropBelowMinimum:   {},
	ErrBelowExistentialDeposit: {},
	ErrInternal:                {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an operation error to its result code. nil maps to "".
func CodeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, currency.ErrInvalidAmount), errors.Is(err, ledger.ErrOwnerTooLong):
		return ErrBadRequest
	case errors.Is(err, ledger.ErrIDOverflow):
		return ErrIDOverflow
	case errors.Is(err, ledger.ErrNotOwned):
		return ErrNotOwned
	case errors.Is(err, ledger.ErrIncompatibleGenders):
		return ErrIncompatibleGenders
	case errors.Is(err, ledger.ErrNotForSale):
		return ErrNotForSale
	case errors.Is(err, ledger.ErrPriceTooLow):
		return ErrPriceTooLow
	case errors.Is(err, currency.ErrInsufficientBalance):
		return ErrInsufficientBalance
	case errors.Is(err, currency.ErrWouldDropBelowMinimum):
		return ErrWouldDropBelowMinimum
	case errors.Is(err, currency.ErrBelowExistentialDeposit):
		return ErrBelowExistentialDeposit
	default:
		return ErrInternal
	}
}
