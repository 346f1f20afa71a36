package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"kittyledger.dev/internal/persistence/snapshot"
)

type EpochArchiveMeta struct {
	Epoch       int    `json:"epoch"`
	EndCycle    uint64 `json:"end_cycle"`
	LedgerID    string `json:"ledger_id"`
	Snapshot    string `json:"snapshot"`
	Digest      string `json:"digest"`
	NextID      uint32 `json:"next_id"`
	Kitties     int    `json:"kitties"`
	CreatedAt   string `json:"created_at"`
	EpochCycles uint64 `json:"epoch_cycles"`
}

// ArchiveEpochSnapshot copies an epoch-end snapshot into `ledgerDir/archives/epoch_<NNN>/`.
// An epoch ends at every multiple of epochCycles. It returns (epoch, archivedPath, archived=true)
// when snap closes one.
func ArchiveEpochSnapshot(ledgerDir, snapshotPath string, snap snapshot.Snapshot, epochCycles uint64) (epoch int, archivedPath string, archived bool, err error) {
	if epochCycles == 0 || snap.Header.Cycle == 0 {
		return 0, "", false, nil
	}
	if snap.Header.Cycle%epochCycles != 0 {
		return 0, "", false, nil
	}
	epoch = int(snap.Header.Cycle / epochCycles)

	archiveDir := filepath.Join(ledgerDir, "archives", fmt.Sprintf("epoch_%03d", epoch))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := EpochArchiveMeta{
		Epoch:       epoch,
		EndCycle:    snap.Header.Cycle,
		LedgerID:    snap.Header.LedgerID,
		Snapshot:    filepath.Base(dst),
		Digest:      snap.Digest,
		NextID:      snap.NextID,
		Kitties:     len(snap.Kitties),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		EpochCycles: epochCycles,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return epoch, dst, true, nil
}

// PruneSnapshots removes all but the newest keep snapshots in dir and
// returns the removed paths. keep <= 0 disables pruning.
func PruneSnapshots(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	type entry struct {
		cycle uint64
		path  string
	}
	var snaps []entry
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		cycle, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, entry{cycle: cycle, path: filepath.Join(dir, name)})
	}
	if len(snaps) <= keep {
		return nil, nil
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].cycle > snaps[j].cycle })

	var removed []string
	for _, s := range snaps[keep:] {
		if err := os.Remove(s.path); err != nil {
			return removed, err
		}
		removed = append(removed, s.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
