package ledger

import (
	"fmt"

	"kittyledger.dev/internal/sim/ledger/kv"
	"kittyledger.dev/internal/sim/model"
)

func readNextID(r kv.Reader) (model.KittyID, error) {
	raw, ok, err := r.Get(kv.MetaKey(kv.MetaNextID))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, ok := kv.DecodeU32(raw)
	if !ok {
		return 0, fmt.Errorf("corrupt next_id cell (%d bytes)", len(raw))
	}
	return model.KittyID(v), nil
}

// nextID hands out the current counter value and stages its increment. The
// increment is dropped with the rest of tx if the operation fails later.
func nextID(tx kv.ReadWriter) (model.KittyID, error) {
	cur, err := readNextID(tx)
	if err != nil {
		return 0, err
	}
	if cur == model.MaxKittyID {
		return 0, ErrIDOverflow
	}
	tx.Put(kv.MetaKey(kv.MetaNextID), kv.EncodeU32(uint32(cur+1)))
	return cur, nil
}
