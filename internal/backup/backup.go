// Package backup snapshots and restores the records datastore file.
//
// A backup is a full copy of the datastore file in the backup directory
// plus an entry in backups.json recording its id, comment, size and
// BLAKE2b-256 checksum. Automatic backups are taken before every
// mutation and pruned to a retention count; manual backups are kept
// until removed by hand.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/nugget/kith/internal/atomicfile"
)

// MetadataFile is the name of the metadata file in the backup directory.
const MetadataFile = "backups.json"

var (
	// ErrNotFound is returned for an unknown backup id.
	ErrNotFound = errors.New("backup not found")
	// ErrChecksum is returned when a backup file no longer matches its
	// recorded checksum.
	ErrChecksum = errors.New("checksum mismatch")
)

// Record describes one backup.
type Record struct {
	ID           int       `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"path"`
	Comment      string    `json:"comment"`
	IsAuto       bool      `json:"is_auto"`
	Size         int64     `json:"size"`
	OriginalPath string    `json:"original_path"`
	Checksum     string    `json:"checksum"` // hex BLAKE2b-256
}

// BackupError reports a failed backup, restore or cleanup. Mutations
// never proceed past a BackupError.
type BackupError struct {
	Op  string // create, restore, verify, cleanup
	ID  int    // backup id, 0 when not yet assigned
	Err error
}

func (e *BackupError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("backup %s #%d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("backup %s: %v", e.Op, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// Datastore is the live datastore being protected. Close and Reopen
// bracket the file replacement during a restore.
type Datastore interface {
	Path() string
	Close() error
	Reopen() error
}

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Restored Record // the backup that was copied over the live file
	Safety   Record // snapshot of the live file taken before the restore
}

type metadata struct {
	NextID  int      `json:"next_id"`
	Backups []Record `json:"backups"`
}

// Manager creates, restores and prunes backups. All methods are safe
// for concurrent use; backups and restores are serialized.
type Manager struct {
	dir    string
	store  Datastore
	logger *slog.Logger

	mu   sync.Mutex
	meta metadata

	copy func(dst io.Writer, src io.Reader) (int64, error)
	now  func() time.Time
}

// NewManager opens the backup directory, creating it if needed, and
// loads existing metadata.
func NewManager(dir string, store Datastore, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	m := &Manager{
		dir:    dir,
		store:  store,
		logger: logger.With("component", "backup"),
		meta:   metadata{NextID: 1},
		copy:   io.Copy,
		now:    time.Now,
	}

	data, err := os.ReadFile(m.metaPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", MetadataFile, err)
	default:
		if err := json.Unmarshal(data, &m.meta); err != nil {
			return nil, fmt.Errorf("parse %s: %w", MetadataFile, err)
		}
		if m.meta.NextID < 1 {
			m.meta.NextID = 1
		}
		for _, r := range m.meta.Backups {
			if r.ID >= m.meta.NextID {
				m.meta.NextID = r.ID + 1
			}
		}
	}
	return m, nil
}

func (m *Manager) metaPath() string {
	return filepath.Join(m.dir, MetadataFile)
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return atomicfile.WriteFile(m.metaPath(), data, 0o600)
}

// Create copies the live datastore file into the backup directory and
// records it. The returned record is a copy.
func (m *Manager) Create(comment string, auto bool) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(comment, auto)
}

func (m *Manager) create(comment string, auto bool) (*Record, error) {
	id := m.meta.NextID
	ts := m.now().UTC()
	live := m.store.Path()
	dst := filepath.Join(m.dir, fmt.Sprintf("kith-%04d-%s.db", id, ts.Format("20060102T150405Z")))

	src, err := os.Open(live)
	if err != nil {
		return nil, &BackupError{Op: "create", Err: err}
	}
	defer src.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, &BackupError{Op: "create", Err: err}
	}
	var size int64
	err = atomicfile.Write(dst, 0o600, func(w io.Writer) error {
		n, err := m.copy(io.MultiWriter(w, h), src)
		size = n
		if err != nil {
			return fmt.Errorf("copy %s: %w", live, err)
		}
		return nil
	})
	if err != nil {
		return nil, &BackupError{Op: "create", Err: err}
	}

	rec := Record{
		ID:           id,
		Timestamp:    ts,
		Path:         dst,
		Comment:      comment,
		IsAuto:       auto,
		Size:         size,
		OriginalPath: live,
		Checksum:     hex.EncodeToString(h.Sum(nil)),
	}
	prev := m.meta
	m.meta.NextID = id + 1
	m.meta.Backups = append(m.meta.Backups[:len(m.meta.Backups):len(m.meta.Backups)], rec)
	if err := m.save(); err != nil {
		m.meta = prev
		_ = os.Remove(dst)
		return nil, &BackupError{Op: "create", Err: fmt.Errorf("save metadata: %w", err)}
	}

	m.logger.Info("backup created", "id", id, "auto", auto, "comment", comment, "size", size)
	return &rec, nil
}

// Restore replaces the live datastore with backup id. A fresh safety
// backup of the live file is taken first. The live file is only
// replaced by an atomic rename, so any failure before that point leaves
// it untouched; the datastore is reopened either way.
func (m *Manager) Restore(id int) (*RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.find(id)
	if !ok {
		return nil, &BackupError{Op: "restore", ID: id, Err: ErrNotFound}
	}

	safety, err := m.create(fmt.Sprintf("safety backup before restore of #%d", id), false)
	if err != nil {
		return nil, &BackupError{Op: "restore", ID: id, Err: err}
	}

	if err := verify(target); err != nil {
		return nil, &BackupError{Op: "restore", ID: id, Err: err}
	}

	src, err := os.Open(target.Path)
	if err != nil {
		return nil, &BackupError{Op: "restore", ID: id, Err: err}
	}
	defer src.Close()

	if err := m.store.Close(); err != nil {
		return nil, &BackupError{Op: "restore", ID: id, Err: fmt.Errorf("close datastore: %w", err)}
	}

	live := m.store.Path()
	copyErr := atomicfile.Write(live, 0, func(w io.Writer) error {
		if _, err := m.copy(w, src); err != nil {
			return fmt.Errorf("copy backup: %w", err)
		}
		return nil
	})
	reopenErr := m.store.Reopen()

	if copyErr != nil {
		m.logger.Error("restore failed, live datastore unchanged", "id", id, "error", copyErr)
		return nil, &BackupError{Op: "restore", ID: id, Err: errors.Join(copyErr, reopenErr)}
	}
	if reopenErr != nil {
		return nil, &BackupError{Op: "restore", ID: id, Err: fmt.Errorf("reopen datastore: %w", reopenErr)}
	}

	m.logger.Info("datastore restored", "id", id, "safety_backup", safety.ID)
	return &RestoreResult{Restored: target, Safety: *safety}, nil
}

// Verify checks that backup id exists on disk and matches its checksum.
func (m *Manager) Verify(id int) error {
	m.mu.Lock()
	rec, ok := m.find(id)
	m.mu.Unlock()
	if !ok {
		return &BackupError{Op: "verify", ID: id, Err: ErrNotFound}
	}
	if err := verify(rec); err != nil {
		return &BackupError{Op: "verify", ID: id, Err: err}
	}
	return nil
}

func verify(rec Record) error {
	f, err := os.Open(rec.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return fmt.Errorf("read %s: %w", rec.Path, err)
	}
	if n != rec.Size {
		return fmt.Errorf("%w: size %d, recorded %d", ErrChecksum, n, rec.Size)
	}
	if sum := hex.EncodeToString(h.Sum(nil)); sum != rec.Checksum {
		return fmt.Errorf("%w: got %s, recorded %s", ErrChecksum, sum, rec.Checksum)
	}
	return nil
}

// CleanupAuto deletes the oldest automatic backups so that at most keep
// remain. Manual backups are never touched. Returns the number removed.
func (m *Manager) CleanupAuto(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var autos []Record
	for _, r := range m.meta.Backups {
		if r.IsAuto {
			autos = append(autos, r)
		}
	}
	if len(autos) <= keep {
		return 0, nil
	}
	sort.Slice(autos, func(i, j int) bool { return autos[i].ID < autos[j].ID })

	// A file that cannot be removed stays listed; the rest are pruned
	// and the first failure is reported after the metadata is saved.
	var firstErr error
	doomed := make(map[int]bool, len(autos)-keep)
	for _, r := range autos[:len(autos)-keep] {
		if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("removing automatic backup failed", "id", r.ID, "error", err)
			if firstErr == nil {
				firstErr = &BackupError{Op: "cleanup", ID: r.ID, Err: err}
			}
			continue
		}
		doomed[r.ID] = true
	}
	if len(doomed) == 0 {
		return 0, firstErr
	}

	kept := make([]Record, 0, len(m.meta.Backups)-len(doomed))
	for _, r := range m.meta.Backups {
		if !doomed[r.ID] {
			kept = append(kept, r)
		}
	}
	m.meta.Backups = kept
	if err := m.save(); err != nil {
		return 0, &BackupError{Op: "cleanup", Err: fmt.Errorf("save metadata: %w", err)}
	}

	m.logger.Debug("automatic backups pruned", "removed", len(doomed), "kept", keep)
	return len(doomed), firstErr
}

// List returns all backups ordered by id.
func (m *Manager) List() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.meta.Backups))
	copy(out, m.meta.Backups)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns backup id.
func (m *Manager) Get(id int) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(id)
}

func (m *Manager) find(id int) (Record, bool) {
	for _, r := range m.meta.Backups {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
