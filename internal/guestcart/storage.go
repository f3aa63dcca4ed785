package guestcart

import (
	"os"
	"path/filepath"
	"sync"
)

// storageKey is the single namespaced entry the guest cart lives under.
const storageKey = "guest_cart"

// Storage abstracts the device-local key/value store so the cart is testable
// without a real filesystem. Get returns (nil, nil) when the key is absent.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

type MemoryStorage struct {
	mutex   sync.Mutex
	entries map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	value, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStorage) Set(key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.entries, key)
	return nil
}

// FileStorage keeps each key as a JSON file under a root directory.
type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.root, key+".json")
}

func (f *FileStorage) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

func (f *FileStorage) Set(key string, value []byte) error {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(f.path(key), value, 0o644)
}

func (f *FileStorage) Remove(key string) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
