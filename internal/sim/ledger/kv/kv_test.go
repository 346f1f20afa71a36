package kv

import (
	"errors"
	"testing"
)

func collect(t *testing.T, r Reader, prefix []byte) []string {
	t.Helper()
	var out []string
	if err := r.Scan(prefix, func(k, v []byte) error {
		out = append(out, string(k)+"="+string(v))
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestMemStore_ApplyGetScan(t *testing.T) {
	s := NewMemStore()
	if err := s.Apply([]Write{
		{Key: []byte("b/2"), Value: []byte("two")},
		{Key: []byte("a/1"), Value: []byte("one")},
		{Key: []byte("b/1"), Value: []byte("uno")},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	v, ok, err := s.Get([]byte("a/1"))
	if err != nil || !ok || string(v) != "one" {
		t.Fatalf("get a/1 = %q ok=%v err=%v", v, ok, err)
	}
	v[0] = 'X'
	v2, _, _ := s.Get([]byte("a/1"))
	if string(v2) != "one" {
		t.Fatalf("Get must return a copy, got %q", v2)
	}

	got := collect(t, s, []byte("b/"))
	if len(got) != 2 || got[0] != "b/1=uno" || got[1] != "b/2=two" {
		t.Fatalf("scan b/ = %v", got)
	}

	if err := s.Apply([]Write{{Key: []byte("b/1"), Delete: true}}); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if _, ok, _ := s.Get([]byte("b/1")); ok {
		t.Fatalf("b/1 should be deleted")
	}

	_ = s.Close()
	if err := s.Apply(nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("apply after close err=%v want ErrClosed", err)
	}
}

func TestOverlay_StagesUntilApplied(t *testing.T) {
	s := NewMemStore()
	_ = s.Apply([]Write{
		{Key: []byte("k1"), Value: []byte("base1")},
		{Key: []byte("k2"), Value: []byte("base2")},
	})

	o := NewOverlay(s)
	o.Put([]byte("k1"), []byte("staged1"))
	o.Delete([]byte("k2"))
	o.Put([]byte("k3"), []byte("staged3"))

	if v, ok, _ := o.Get([]byte("k1")); !ok || string(v) != "staged1" {
		t.Fatalf("overlay k1 = %q ok=%v", v, ok)
	}
	if _, ok, _ := o.Get([]byte("k2")); ok {
		t.Fatalf("overlay k2 should read as deleted")
	}
	got := collect(t, o, []byte("k"))
	if len(got) != 2 || got[0] != "k1=staged1" || got[1] != "k3=staged3" {
		t.Fatalf("overlay scan = %v", got)
	}

	// Base untouched while staged.
	if v, _, _ := s.Get([]byte("k1")); string(v) != "base1" {
		t.Fatalf("base k1 changed before apply: %q", v)
	}
	if _, ok, _ := s.Get([]byte("k3")); ok {
		t.Fatalf("base k3 visible before apply")
	}

	writes := o.Writes()
	if len(writes) != 3 || string(writes[0].Key) != "k1" || string(writes[2].Key) != "k3" {
		t.Fatalf("writes not sorted: %+v", writes)
	}
	if err := s.Apply(writes); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got = collect(t, s, nil)
	if len(got) != 2 || got[0] != "k1=staged1" || got[1] != "k3=staged3" {
		t.Fatalf("base after apply = %v", got)
	}
}

func TestOverlay_LastWriteWins(t *testing.T) {
	o := NewOverlay(NewMemStore())
	o.Put([]byte("k"), []byte("v1"))
	o.Delete([]byte("k"))
	o.Put([]byte("k"), []byte("v2"))
	if o.Len() != 1 {
		t.Fatalf("len=%d want 1", o.Len())
	}
	w := o.Writes()[0]
	if w.Delete || string(w.Value) != "v2" {
		t.Fatalf("write=%+v want put v2", w)
	}
}

func TestKeys_RoundTrip(t *testing.T) {
	k := KittyKey("alice", 42)
	owner, id, ok := SplitKittyKey(k)
	if !ok || owner != "alice" || id != 42 {
		t.Fatalf("split = %q %d %v", owner, id, ok)
	}
	// Owner prefixes must not overlap when one owner name prefixes another.
	if string(OwnerPrefix("ab")) == string(OwnerPrefix("abc")[:len(OwnerPrefix("ab"))]) {
		t.Fatalf("owner prefixes overlap")
	}
	if id, ok := SplitIDKey(IDKey(PrefixPrice, 7)); !ok || id != 7 {
		t.Fatalf("id key = %d %v", id, ok)
	}
	if v, ok := DecodeU32(EncodeU32(0xdeadbeef)); !ok || v != 0xdeadbeef {
		t.Fatalf("u32 = %x %v", v, ok)
	}
}
