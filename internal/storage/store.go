// Package storage persists the relay target on the operator's machine.
// `enginevm create` writes it; the argument-free relay and the diagnostic
// shell read it. This replaces passing runtime arguments to the relay,
// which its callers (chess GUIs treating it as a local engine binary)
// cannot do.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const targetFile = "target.json"

// Target is the fixed remote endpoint the relay connects to.
type Target struct {
	Project       string    `json:"project"`
	Zone          string    `json:"zone"`
	Instance      string    `json:"instance"`
	Host          string    `json:"host"`
	User          string    `json:"user"`
	KeyPath       string    `json:"key_path"`
	EngineCommand string    `json:"engine_command"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store reads and writes local state under dataDir.
type Store struct {
	dataDir string
	mu      sync.Mutex
}

// NewStore creates a Store rooted at dataDir, ensuring the directory exists.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// SaveTarget persists the relay target, replacing any previous one.
func (s *Store) SaveTarget(t *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dataDir, targetFile), data, 0o600); err != nil {
		return fmt.Errorf("write target: %w", err)
	}
	return nil
}

// Target reads the persisted relay target.
func (s *Store) Target() (*Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dataDir, targetFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no relay target configured: run `enginevm create` first")
		}
		return nil, fmt.Errorf("read target: %w", err)
	}

	var t Target
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal target: %w", err)
	}
	return &t, nil
}

// ClearTarget removes the persisted target. Clearing an absent target is
// not an error.
func (s *Store) ClearTarget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dataDir, targetFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove target: %w", err)
	}
	return nil
}
