package kv

import (
	"encoding/binary"
)

// Namespace
// 0x0/ (meta)
//
//	-> [name] => value
//
// 0x1/ (kitties)
//
//	-> [owner-len][owner][kitty-id] => dna
//
// 0x2/ (owners)
//
//	-> [kitty-id] => owner
//
// 0x3/ (lineage)
//
//	-> [kitty-id] => mother-id|father-id
//
// 0x4/ (prices)
//
//	-> [kitty-id] => decimal
//
// 0x5/ (balances)
//
//	-> [account] => decimal
const (
	PrefixMeta byte = iota
	PrefixKitty
	PrefixOwner
	PrefixLineage
	PrefixPrice
	PrefixBalance
)

const (
	MetaNextID = "next_id"
	MetaCycle  = "cycle"
)

func MetaKey(name string) []byte {
	k := make([]byte, 0, 1+len(name))
	k = append(k, PrefixMeta)
	return append(k, name...)
}

// MaxOwnerLen is the longest owner a kitty key can carry.
const MaxOwnerLen = 1<<16 - 1

// OwnerPrefix is the scan prefix for every kitty held by owner. Owners
// longer than MaxOwnerLen do not round-trip through SplitKittyKey.
func OwnerPrefix(owner string) []byte {
	k := make([]byte, 0, 3+len(owner))
	k = append(k, PrefixKitty)
	k = binary.BigEndian.AppendUint16(k, uint16(len(owner)))
	return append(k, owner...)
}

func KittyKey(owner string, id uint32) []byte {
	return binary.BigEndian.AppendUint32(OwnerPrefix(owner), id)
}

// SplitKittyKey recovers (owner, id) from a key built by KittyKey.
func SplitKittyKey(key []byte) (string, uint32, bool) {
	if len(key) < 7 || key[0] != PrefixKitty {
		return "", 0, false
	}
	n := int(binary.BigEndian.Uint16(key[1:3]))
	if len(key) != 3+n+4 {
		return "", 0, false
	}
	return string(key[3 : 3+n]), binary.BigEndian.Uint32(key[3+n:]), true
}

func IDKey(prefix byte, id uint32) []byte {
	k := make([]byte, 0, 5)
	k = append(k, prefix)
	return binary.BigEndian.AppendUint32(k, id)
}

// SplitIDKey recovers the id from a key built by IDKey.
func SplitIDKey(key []byte) (uint32, bool) {
	if len(key) != 5 {
		return 0, false
	}
	return binary.BigEndian.Uint32(key[1:]), true
}

func BalanceKey(account string) []byte {
	k := make([]byte, 0, 1+len(account))
	k = append(k, PrefixBalance)
	return append(k, account...)
}

func EncodeU32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

func DecodeU32(b []byte) (uint32, bool) {
	if len(b) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func EncodeU64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func DecodeU64(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
