package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"fractea_engine/internal/port"
)

// fileKVStore keeps one JSON blob per key under a directory. Keys are encoded
// so they are always safe file names.
type fileKVStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileKVStore creates (if needed) the directory and returns a store over it.
func NewFileKVStore(dir string) (port.KVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &fileKVStore{dir: dir}, nil
}

func (s *fileKVStore) path(key string) string {
	return filepath.Join(s.dir, encodeKey(key)+".json")
}

func (s *fileKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return blob, true, nil
}

func (s *fileKVStore) Put(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to commit blob %s: %w", key, err)
	}
	return nil
}

func (s *fileKVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *fileKVStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage dir %s: %w", s.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := decodeKey(strings.TrimSuffix(entry.Name(), ".json"))
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// encodeKey makes a key filesystem-safe. Owner IDs are emails, so ':', '/'
// and '@' must not leak into paths.
func encodeKey(key string) string {
	replacer := strings.NewReplacer(":", "%3A", "/", "%2F", "\\", "%5C", "@", "%40")
	return replacer.Replace(key)
}

func decodeKey(name string) string {
	replacer := strings.NewReplacer("%3A", ":", "%2F", "/", "%5C", "\\", "%40", "@")
	return replacer.Replace(name)
}
