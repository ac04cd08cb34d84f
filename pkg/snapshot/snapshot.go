package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/football-dw/warehouse/pkg/helpers"
	"github.com/football-dw/warehouse/pkg/path"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	filePrefix   = "snapshot_"
	fileTimeForm = "20060102_150405"
)

var ErrNoSnapshots = errors.New("no snapshots have been taken")

type Snapshot struct {
	Timestamp time.Time        `json:"timestamp"`
	RunID     string           `json:"run_id"`
	Counts    map[string]int64 `json:"counts"`
}

type Counter interface {
	TableCounts(ctx context.Context, schema string, tables []string) (map[string]int64, error)
}

// Take records the current row count of every table that exists.
func Take(ctx context.Context, db Counter, schema string, tables []string, runID string, now time.Time) (*Snapshot, error) {
	counts, err := db.TableCounts(ctx, schema, tables)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count warehouse tables")
	}

	return &Snapshot{Timestamp: now.UTC(), RunID: runID, Counts: counts}, nil
}

// Store keeps one immutable file per snapshot in a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

func (s *Store) FileName(snap *Snapshot) string {
	return filepath.Join(s.dir, filePrefix+snap.Timestamp.Format(fileTimeForm)+".json")
}

// Write stores snap and returns the file it was written to. An existing snapshot file is never replaced.
func (s *Store) Write(snap *Snapshot) (string, error) {
	name := s.FileName(snap)
	if path.FileExists(s.fs, name) {
		return "", errors.Errorf("snapshot %s already exists", name)
	}

	if err := helpers.WriteJSONToFile(s.fs, snap, name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) Latest() (*Snapshot, error) {
	if !path.DirExists(s.fs, s.dir) {
		return nil, ErrNoSnapshots
	}

	name, err := helpers.GetLatestFileInDir(s.fs, s.dir, filePrefix)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := helpers.ReadJSONFile(s.fs, name, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

type Delta struct {
	Table  string
	Before int64
	After  int64
	// Existed is false for tables that were not present when the snapshot was taken.
	Existed bool
}

func (d Delta) Change() int64 {
	return d.After - d.Before
}

func (d Delta) String() string {
	if !d.Existed {
		return fmt.Sprintf("%s: %d (new)", d.Table, d.After)
	}
	return fmt.Sprintf("%s: %d -> %d (%+d)", d.Table, d.Before, d.After, d.Change())
}

// Compare lists the change of every table counted in after, sorted by table name.
func Compare(before *Snapshot, after map[string]int64) []Delta {
	deltas := make([]Delta, 0, len(after))
	for table, count := range after {
		d := Delta{Table: table, After: count}
		if before != nil {
			d.Before, d.Existed = before.Counts[table]
		}
		deltas = append(deltas, d)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Table < deltas[j].Table })
	return deltas
}
