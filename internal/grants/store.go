// Package grants persists per-network access grants: which origins may
// issue wallet requests without re-approving their connection.
package grants

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ice-blockchain/ion-chrome-wallet/internal/tonconnect"
)

var ErrStoreUnavailable = errors.New("grants: store unavailable")

// On-disk representation
type grantsFile struct {
	Networks map[string][]tonconnect.Grant `json:"networks"`
	Updated  string                        `json:"updated,omitempty"`
}

// Store is the authoritative access-grant list, backed by a JSON file.
// Read-modify-write sequences take the write lock for their whole span, so
// concurrent disconnects for different origins never interleave.
type Store struct {
	mu       sync.RWMutex
	path     string
	networks map[string][]tonconnect.Grant
}

// NewStore creates a store backed by a JSON file at path.
func NewStore(path string) *Store {
	return &Store{
		path:     path,
		networks: make(map[string][]tonconnect.Grant),
	}
}

// Load reads the grant list from disk.
// Missing file = no grants yet (first run).
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.networks = make(map[string][]tonconnect.Grant)
			return nil
		}
		return fmt.Errorf("%w: read grants file: %v", ErrStoreUnavailable, err)
	}

	var gf grantsFile
	if err := json.Unmarshal(b, &gf); err != nil {
		return fmt.Errorf("%w: parse grants file: %v", ErrStoreUnavailable, err)
	}
	if gf.Networks == nil {
		gf.Networks = make(map[string][]tonconnect.Grant)
	}
	s.networks = gf.Networks
	return nil
}

func (s *Store) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: mkdir grants dir: %v", ErrStoreUnavailable, err)
	}

	gf := grantsFile{
		Networks: s.networks,
		Updated:  time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.MarshalIndent(gf, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal grants: %v", ErrStoreUnavailable, err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("%w: write grants file: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns a copy of the grant list for a network.
func (s *Store) Get(network string) []tonconnect.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.networks[network]
	out := make([]tonconnect.Grant, len(src))
	copy(out, src)
	return out
}

// Set replaces the grant list for a network and persists it.
func (s *Store) Set(network string, grants []tonconnect.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks[network] = grants
	return s.saveLocked()
}

// Add appends a grant for a network and persists the list.
func (s *Store) Add(network string, g tonconnect.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks[network] = append(s.networks[network], g)
	return s.saveLocked()
}

// RevokeOrigin removes every grant matching origin on the given network,
// as a single read-modify-write step, and reports how many were removed.
func (s *Store) RevokeOrigin(network, origin string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.networks[network]
	kept := make([]tonconnect.Grant, 0, len(src))
	removed := 0
	for _, g := range src {
		if g.Origin == origin {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	if removed == 0 {
		return 0, nil
	}
	s.networks[network] = kept
	if err := s.saveLocked(); err != nil {
		return 0, err
	}
	return removed, nil
}

// HasOrigin reports whether the origin holds any grant on the network.
func (s *Store) HasOrigin(network, origin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.networks[network] {
		if g.Origin == origin {
			return true
		}
	}
	return false
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Reload re-reads the backing file, used by the file watcher.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}
