// pkg/store/bolt.go

package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("objects")

type boltStore struct {
	path string
	db   *bolt.DB
}

// NewBolt returns an ObjectStore keeping all objects in one bbolt
// database file.
func NewBolt(path string) (ObjectStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second * 3})
	if err != nil {
		return nil, fmt.Errorf("open %s: %s", path, err)
	}
	return &boltStore{path: path, db: db}, nil
}

func newBolt(endpoint, accessKey, secretKey string) (ObjectStore, error) {
	return NewBolt(endpoint)
}

func init() {
	Register("bolt", newBolt)
}

func (b *boltStore) String() string {
	return fmt.Sprintf("bolt://%s", b.path)
}

func (b *boltStore) Create() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
}

func (b *boltStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return fmt.Errorf("%s: %w", key, os.ErrNotExist)
		}
		v := bucket.Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%s: %w", key, os.ErrNotExist)
		}
		data = append([]byte{}, v...) // v is only valid inside the transaction
		return nil
	})
	if err != nil {
		return nil, err
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

func (b *boltStore) Put(key string, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(boltBucket)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), data)
	})
}

func (b *boltStore) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

var _ ObjectStore = (*boltStore)(nil)
