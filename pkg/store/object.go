// pkg/store/object.go

// Package store provides the object storage backends chunks live in,
// decorating wrappers around them, and the chunk sources the stream
// engine reads from.
package store

import (
	"fmt"
	"io"
	"strings"

	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

var logger = utils.GetLogger("hfs")

// ObjectStore is a key addressed blob store. Get reads limit bytes
// starting at off; a negative limit means the rest of the object.
// Getting a missing key reports an error satisfying
// errors.Is(err, os.ErrNotExist).
type ObjectStore interface {
	String() string
	Create() error
	Get(key string, off, limit int64) (io.ReadCloser, error)
	Put(key string, in io.Reader) error
	Delete(key string) error
}

// Creator builds an ObjectStore from an endpoint and credentials.
type Creator func(endpoint, accessKey, secretKey string) (ObjectStore, error)

var storages = make(map[string]Creator)

// Register makes a storage scheme available to CreateStorage.
func Register(name string, creator Creator) {
	storages[name] = creator
}

// CreateStorage creates an ObjectStore by scheme name.
func CreateStorage(name, endpoint, accessKey, secretKey string) (ObjectStore, error) {
	f, ok := storages[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("invalid storage: %s", name)
	}
	logger.Debugf("creating %s storage at endpoint %s", name, endpoint)
	return f(endpoint, accessKey, secretKey)
}
