package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libmapper/libmapper-max-sub000/pkg/device"
)

// SnapshotVersion is the current version of the snapshot file format.
const SnapshotVersion = 1

// Snapshot is the persisted state of a process.
type Snapshot struct {
	// Version is the snapshot file format version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Devices holds one dump per device context.
	Devices []device.Dump `json:"devices"`
}

// Device returns the dump with the given device name.
func (s *Snapshot) Device(name string) (device.Dump, bool) {
	for _, d := range s.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return device.Dump{}, false
}

// SnapshotStore manages persistence of snapshots to a JSON file.
type SnapshotStore struct {
	mu   sync.Mutex
	path string
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string { return s.path }

// Save persists the snapshot to disk. The file is replaced atomically.
func (s *SnapshotStore) Save(snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Capture dumps every device and saves the result.
func (s *SnapshotStore) Capture(devices ...*device.Device) (*Snapshot, error) {
	snap := &Snapshot{Devices: make([]device.Dump, 0, len(devices))}
	for _, d := range devices {
		snap.Devices = append(snap.Devices, d.Dump())
	}
	if err := s.Save(snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Load reads the snapshot from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *SnapshotStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// Clear removes the snapshot file.
func (s *SnapshotStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
