// pkg/store/prefix.go

package store

import (
	"fmt"
	"io"
)

type withPrefix struct {
	os     ObjectStore
	prefix string
}

// WithPrefix returns a store that prepends prefix to every key, so
// several volumes can share one backend.
func WithPrefix(os ObjectStore, prefix string) ObjectStore {
	return &withPrefix{os, prefix}
}

func (p *withPrefix) String() string {
	return fmt.Sprintf("%s%s", p.os, p.prefix)
}

func (p *withPrefix) Create() error {
	return p.os.Create()
}

func (p *withPrefix) Get(key string, off, limit int64) (io.ReadCloser, error) {
	return p.os.Get(p.prefix+key, off, limit)
}

func (p *withPrefix) Put(key string, in io.Reader) error {
	return p.os.Put(p.prefix+key, in)
}

func (p *withPrefix) Delete(key string) error {
	return p.os.Delete(p.prefix + key)
}

var _ ObjectStore = (*withPrefix)(nil)
