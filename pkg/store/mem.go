// pkg/store/mem.go

package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

type memStore struct {
	sync.Mutex
	name    string
	objects map[string][]byte
}

// NewMem returns an ObjectStore keeping everything in memory, for
// tests and tooling.
func NewMem(name string) ObjectStore {
	return &memStore{name: name, objects: make(map[string][]byte)}
}

func newMem(endpoint, accessKey, secretKey string) (ObjectStore, error) {
	return NewMem(endpoint), nil
}

func init() {
	Register("mem", newMem)
}

func (m *memStore) String() string {
	return fmt.Sprintf("mem://%s/", m.name)
}

func (m *memStore) Create() error {
	return nil
}

func (m *memStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	m.Lock()
	defer m.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, os.ErrNotExist)
	}
	if off > int64(len(data)) {
		off = int64(len(data))
	}
	data = data[off:]
	if limit >= 0 && limit < int64(len(data)) {
		data = data[:limit]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Put(key string, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStore) Delete(key string) error {
	m.Lock()
	defer m.Unlock()
	delete(m.objects, key)
	return nil
}

var _ ObjectStore = (*memStore)(nil)
