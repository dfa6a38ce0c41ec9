package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/roomoperable/fleetpulse/pkg/models"
)

// LocalStore holds the agent's copy of the synced configuration document and
// persists it as JSON. The sync loop is the only writer; probe cycles take
// read snapshots.
type LocalStore struct {
	path string

	mu  sync.RWMutex
	doc models.ConfigDocument
}

// NewLocalStore binds a store to path without touching the filesystem.
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// Load reads the persisted document. A missing file is not an error: the
// agent starts with an empty topology and fills it on the first sync.
func (s *LocalStore) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read device config %q: %w", s.path, err)
	}
	var doc models.ConfigDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode device config %q: %w", s.path, err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Document returns a snapshot of the current document. The device slice is
// copied so probe cycles never observe a concurrent sync write.
func (s *LocalStore) Document() models.ConfigDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := s.doc
	doc.Devices = append([]models.DeviceDescriptor(nil), s.doc.Devices...)
	return doc
}

// Replace swaps in a new document and persists it atomically via a temp
// file rename.
func (s *LocalStore) Replace(doc models.ConfigDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".fleetpulse-config-*")
	if err != nil {
		return fmt.Errorf("write device config %q: %w", s.path, err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(raw)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("write device config %q: %w", s.path, werr)
		}
		return fmt.Errorf("write device config %q: %w", s.path, cerr)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write device config %q: %w", s.path, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Fingerprint returns the last-applied config fingerprint.
func (s *LocalStore) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Fingerprint
}
