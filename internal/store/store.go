// Package store persists the trader's view of the world between restarts:
// the pending-order registry, the position, and a runtime heartbeat. Writes
// are atomic (temp file + rename) so a crash never leaves a torn file.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"limit-trader/internal/core"
)

// Snapshot is what the tracker saves after every registry or position
// mutation. A restart re-tracks the persisted orders instead of losing them.
type Snapshot struct {
	Symbol    string        `json:"symbol"`
	Position  core.Position `json:"position"`
	Orders    []core.Order  `json:"orders"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type RuntimeStatus struct {
	Mode      string    `json:"mode"`
	Symbol    string    `json:"symbol"`
	PID       int       `json:"pid"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Persister is the slice of Store the tracker consumes.
type Persister interface {
	SaveSnapshot(snapshot Snapshot) error
}

type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) SaveSnapshot(snapshot Snapshot) error {
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.snapshotPath(), snapshot)
}

func (s *Store) LoadSnapshot() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, err
	}
	return snapshot, true, nil
}

func (s *Store) SaveRuntimeStatus(status RuntimeStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.statusPath(), status)
}

func (s *Store) snapshotPath() string {
	return filepath.Join(s.root, "snapshot.json")
}

func (s *Store) statusPath() string {
	return filepath.Join(s.root, "runtime_status.json")
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
