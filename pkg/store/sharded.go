// pkg/store/sharded.go

package store

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

type sharded struct {
	stores []ObjectStore
}

// NewSharded spreads keys over shards instances of the same storage.
// The endpoint must contain a %d verb that is replaced by the shard
// index.
func NewSharded(name, endpoint, accessKey, secretKey string, shards int) (ObjectStore, error) {
	if shards <= 1 {
		return nil, fmt.Errorf("invalid number of shards: %d", shards)
	}
	stores := make([]ObjectStore, shards)
	var err error
	for i := range stores {
		stores[i], err = CreateStorage(name, fmt.Sprintf(endpoint, i), accessKey, secretKey)
		if err != nil {
			return nil, err
		}
	}
	return &sharded{stores}, nil
}

func (s *sharded) pick(key string) ObjectStore {
	h := xxhash.Sum64String(key)
	return s.stores[h%uint64(len(s.stores))]
}

func (s *sharded) String() string {
	return fmt.Sprintf("shard%d://%s", len(s.stores), s.stores[0])
}

func (s *sharded) Create() error {
	for _, o := range s.stores {
		if err := o.Create(); err != nil {
			return err
		}
	}
	return nil
}

func (s *sharded) Get(key string, off, limit int64) (io.ReadCloser, error) {
	return s.pick(key).Get(key, off, limit)
}

func (s *sharded) Put(key string, in io.Reader) error {
	return s.pick(key).Put(key, in)
}

func (s *sharded) Delete(key string) error {
	return s.pick(key).Delete(key)
}

var _ ObjectStore = (*sharded)(nil)
