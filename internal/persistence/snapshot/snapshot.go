package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/shopspring/decimal"
)

const fileSuffix = ".snap.zst"

type Header struct {
	LedgerID string `json:"ledger_id"`
	Cycle    uint64 `json:"cycle"`
}

// Snapshot is the full ledger state after Header.Cycle completed.
type Snapshot struct {
	Header Header `json:"header"`

	NextID   uint32    `json:"next_id"`
	Kitties  []Kitty   `json:"kitties"`
	Lineage  []Lineage `json:"lineage"`
	Listings []Listing `json:"listings"`
	Accounts []Account `json:"accounts"`

	// Digest of the ledger namespace when the snapshot was taken.
	Digest string `json:"digest"`
}

type Kitty struct {
	ID    uint32   `json:"id"`
	Owner string   `json:"owner"`
	DNA   [16]byte `json:"dna"`
}

type Lineage struct {
	ID     uint32 `json:"id"`
	Mother uint32 `json:"mother"`
	Father uint32 `json:"father"`
}

type Listing struct {
	ID    uint32          `json:"id"`
	Price decimal.Decimal `json:"price"`
}

type Account struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Path returns where the snapshot for cycle lives under dir.
func Path(dir string, cycle uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", cycle, fileSuffix))
}

func WriteSnapshot(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// Latest finds the snapshot with the highest cycle in dir. It returns "" when
// dir holds none.
func Latest(dir string) (string, uint64) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", 0
	}
	var best string
	var bestCycle uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		cycle, err := strconv.ParseUint(strings.TrimSuffix(name, fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || cycle > bestCycle {
			bestCycle = cycle
			best = filepath.Join(dir, name)
		}
	}
	return best, bestCycle
}
