// pkg/store/disk.go

package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type diskStore struct {
	root string
}

// NewDisk returns an ObjectStore backed by a directory tree; keys map
// to file paths below root.
func NewDisk(root string) ObjectStore {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return &diskStore{root: root}
}

func newDisk(endpoint, accessKey, secretKey string) (ObjectStore, error) {
	return NewDisk(endpoint), nil
}

func init() {
	Register("file", newDisk)
}

func (d *diskStore) String() string {
	return fmt.Sprintf("file://%s", d.root)
}

func (d *diskStore) path(key string) string {
	return filepath.Join(d.root, key)
}

func (d *diskStore) Create() error {
	return os.MkdirAll(d.root, 0755)
}

func (d *diskStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	f, err := os.Open(d.path(key))
	if err != nil {
		return nil, err
	}
	if off > 0 {
		if _, err = f.Seek(off, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if limit >= 0 {
		return &sectionFile{io.LimitReader(f, limit), f}, nil
	}
	return f, nil
}

// sectionFile keeps Close working after the reader is wrapped by a limit.
type sectionFile struct {
	io.Reader
	io.Closer
}

func (d *diskStore) Put(key string, in io.Reader) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	// write to a temporary name and rename so readers never see a
	// partial object
	tmp := fmt.Sprintf("%s.tmp.%s", p, uuid.New().String()[:8])
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, in); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (d *diskStore) Delete(key string) error {
	err := os.Remove(d.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

var _ ObjectStore = (*diskStore)(nil)
