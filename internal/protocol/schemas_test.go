package protocol

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"kittyledger.dev/internal/sim/genetics"
	"kittyledger.dev/internal/sim/ledger"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	return v
}

func TestSchemas_ValidateSamples(t *testing.T) {
	v := newValidator(t)

	valid := []string{
		`{"type":"MINT","caller":"alice"}`,
		`{"id":"c1","type":"BREED","caller":"alice","parent1":0,"parent2":1}`,
		`{"type":"TRANSFER","caller":"alice","kitty_id":2,"to":"bob"}`,
		`{"type":"SET_PRICE","caller":"alice","kitty_id":2,"price":"200"}`,
		`{"type":"SET_PRICE","caller":"alice","kitty_id":2,"price":null}`,
		`{"type":"SET_PRICE","caller":"alice","kitty_id":2}`,
		`{"type":"BUY","caller":"bob","kitty_id":2,"seller":"alice","max_bid":1000}`,
		`{"type":"BUY","caller":"bob","kitty_id":2,"seller":"alice","max_bid":"12.5"}`,
	}
	for _, line := range valid {
		if err := v.ValidateJSON(SchemaCommand, []byte(line)); err != nil {
			t.Fatalf("validate %s: %v", line, err)
		}
	}

	invalid := []string{
		`{"type":"MINT"}`,
		`{"type":"FLY","caller":"alice"}`,
		`{"type":"BREED","caller":"alice","parent1":0}`,
		`{"type":"TRANSFER","caller":"alice","kitty_id":-1,"to":"bob"}`,
		`{"type":"BUY","caller":"bob","kitty_id":2,"seller":"alice"}`,
		`{"type":"BUY","caller":"bob","kitty_id":2,"seller":"alice","max_bid":"-3"}`,
		`{"type":"MINT","caller":"alice","extra":true}`,
	}
	for _, line := range invalid {
		if err := v.ValidateJSON(SchemaCommand, []byte(line)); err == nil {
			t.Fatalf("expected %s to be rejected", line)
		}
	}
}

func TestSchemas_NotificationRecords(t *testing.T) {
	v := newValidator(t)
	mother := genetics.DNA{1}
	father := genetics.DNA{2}
	price := decimal.NewFromInt(200)

	notes := []ledger.Notification{
		{Kind: ledger.KindCreated, Owner: "alice", KittyID: 0, Kitty: mother},
		{Kind: ledger.KindBred, Owner: "alice", KittyID: 2, Kitty: genetics.DNA{3}, Mother: &mother, Father: &father},
		{Kind: ledger.KindTransferred, From: "alice", To: "bob", KittyID: 2, Kitty: genetics.DNA{3}},
		{Kind: ledger.KindPriceSet, Owner: "bob", KittyID: 2},
		{Kind: ledger.KindPriceSet, Owner: "bob", KittyID: 2, Price: &price},
		{Kind: ledger.KindBought, From: "bob", To: "carol", KittyID: 2, Kitty: genetics.DNA{3}, Price: &price},
	}
	for i, n := range notes {
		rec := NewNotificationRecord(7, i, n)
		if err := v.ValidateValue(SchemaNotification, rec); err != nil {
			t.Fatalf("notification %d (%s): %v", i, n.Kind, err)
		}
	}

	bad := NotificationRecord{Cycle: 1, Kind: "BOUGHT", From: "bob", To: "carol", KittyID: 2}
	if err := v.ValidateValue(SchemaNotification, bad); err == nil {
		t.Fatalf("expected BOUGHT without price to be rejected")
	}
}

func TestSchemas_Results(t *testing.T) {
	v := newValidator(t)
	id := uint32(4)
	if err := v.ValidateValue(SchemaResult, Result{ID: "c1", OK: true, KittyID: &id, DNA: genetics.DNA{9}.String()}); err != nil {
		t.Fatalf("ok result: %v", err)
	}
	if err := v.ValidateValue(SchemaResult, Result{ID: "c2", OK: false, Code: ErrNotOwned, Message: "nope"}); err != nil {
		t.Fatalf("failed result: %v", err)
	}
	if err := v.ValidateValue(SchemaResult, Result{ID: "c3", OK: false}); err == nil {
		t.Fatalf("expected failed result without code to be rejected")
	}
}

func TestDecodeCommand(t *testing.T) {
	v := newValidator(t)

	c, err := DecodeCommand(v, []byte(`{"type":"BUY","caller":"bob","kitty_id":2,"seller":"alice","max_bid":"1000"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.ID == "" {
		t.Fatalf("expected generated id")
	}
	if c.KittyID == nil || *c.KittyID != 2 || c.MaxBid == nil || !c.MaxBid.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("decoded=%+v", c)
	}
	if err := c.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}

	c, err = DecodeCommand(v, []byte(`{"id":"keep","type":"MINT","caller":"alice"}`))
	if err != nil || c.ID != "keep" {
		t.Fatalf("decode keep id=%q err=%v", c.ID, err)
	}

	if _, err := DecodeCommand(v, []byte(`{"type":"MINT"}`)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("err=%v want ErrInvalidCommand", err)
	}
	if _, err := DecodeCommand(nil, []byte(`not json`)); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("err=%v want ErrInvalidCommand", err)
	}
}

func TestCommandCheck(t *testing.T) {
	one := uint32(1)
	cases := []Command{
		{Type: TypeMint},
		{Type: "FLY", Caller: "a"},
		{Type: TypeBreed, Caller: "a", Parent1: &one},
		{Type: TypeTransfer, Caller: "a", KittyID: &one},
		{Type: TypeBuy, Caller: "a", KittyID: &one, Seller: "b"},
	}
	for _, c := range cases {
		if err := c.Check(); !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("Check(%+v)=%v want ErrInvalidCommand", c, err)
		}
	}
}
