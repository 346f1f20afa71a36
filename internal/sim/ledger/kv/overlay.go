package kv

import (
	"bytes"
	"sort"
)

// Overlay stages writes on top of a Reader. Reads see staged writes first.
// Nothing reaches the base until the caller hands Writes() to Store.Apply;
// dropping the Overlay discards everything it staged.
type Overlay struct {
	base    Reader
	pending map[string]Write
}

func NewOverlay(base Reader) *Overlay {
	return &Overlay{base: base, pending: make(map[string]Write)}
}

func (o *Overlay) Get(key []byte) ([]byte, bool, error) {
	if w, ok := o.pending[string(key)]; ok {
		if w.Delete {
			return nil, false, nil
		}
		return clone(w.Value), true, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Put(key, value []byte) {
	o.pending[string(key)] = Write{Key: clone(key), Value: clone(value)}
}

func (o *Overlay) Delete(key []byte) {
	o.pending[string(key)] = Write{Key: clone(key), Delete: true}
}

// Scan merges staged writes with the base view, in ascending key order.
func (o *Overlay) Scan(prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	if err := o.base.Scan(prefix, func(k, v []byte) error {
		merged[string(k)] = v
		return nil
	}); err != nil {
		return err
	}
	for k, w := range o.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if w.Delete {
			delete(merged, k)
			continue
		}
		merged[k] = clone(w.Value)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), merged[k]); err != nil {
			return err
		}
	}
	return nil
}

// Writes returns the staged batch sorted by key.
func (o *Overlay) Writes() []Write {
	out := make([]Write, 0, len(o.pending))
	for _, w := range o.pending {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

func (o *Overlay) Len() int { return len(o.pending) }
