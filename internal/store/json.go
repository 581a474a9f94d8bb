package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// JSONStore implements the Store interface using a simple JSON file.
// All keys are kept in memory and persisted to disk on each write.
// With an empty path nothing is persisted, which makes it the in-memory
// backend used by tests and the "memory" driver.
type JSONStore struct {
	commands
	path string
	data map[string]*entry
	mu   sync.RWMutex
}

// jsonPersistence is the on-disk format for the JSON store.
type jsonPersistence struct {
	Keys map[string]*entry `json:"keys"`
}

// NewJSONStore creates a new JSON file-backed store at the given path.
func NewJSONStore(path string) (*JSONStore, error) {
	s := newJSONStore(path)

	if path == "" {
		return s, nil
	}

	// Load existing data if file exists
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return s, nil
}

// NewMemoryStore creates a store that lives only in process memory.
func NewMemoryStore() *JSONStore {
	return newJSONStore("")
}

func newJSONStore(path string) *JSONStore {
	s := &JSONStore{
		path: path,
		data: make(map[string]*entry),
	}
	s.commands = commands{ks: s}
	return s
}

// load reads the JSON file and populates the in-memory map.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var persist jsonPersistence
	if err := json.Unmarshal(data, &persist); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	if persist.Keys != nil {
		s.data = persist.Keys
	}
	return nil
}

// save writes the in-memory map to the JSON file. Callers hold the write lock.
func (s *JSONStore) save() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(jsonPersistence{Keys: s.data}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	// Write to temp file first, then rename (atomic on POSIX)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func (s *JSONStore) view(key string, fn func(e *entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data[key])
}

func (s *JSONStore) update(key string, fn func(e *entry) (*entry, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.data[key]
	if current != nil {
		current = current.clone()
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next.empty() {
		if _, ok := s.data[key]; !ok {
			return nil
		}
		delete(s.data, key)
	} else {
		s.data[key] = next
	}
	return s.save()
}

func (s *JSONStore) scan(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *JSONStore) remove(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}
	return s.save()
}

// Close releases resources held by the store.
// For JSON store, this is a no-op since we don't hold open file handles.
func (s *JSONStore) Close() error {
	return nil
}
