// pkg/store/redis.go

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	rdb *redis.Client
	uri string
}

// NewRedis returns an ObjectStore keeping every object in a Redis
// string value. The endpoint is a redis:// URL.
func NewRedis(endpoint string) (ObjectStore, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "redis://" + endpoint
	}
	opt, err := redis.ParseURL(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %s", endpoint, err)
	}
	if opt.Password == "" && os.Getenv("REDIS_PASSWORD") != "" {
		opt.Password = os.Getenv("REDIS_PASSWORD")
	}
	return &redisStore{rdb: redis.NewClient(opt), uri: endpoint}, nil
}

func newRedis(endpoint, accessKey, secretKey string) (ObjectStore, error) {
	return NewRedis(endpoint)
}

func init() {
	Register("redis", newRedis)
}

func (r *redisStore) String() string {
	return r.uri
}

func (r *redisStore) Create() error {
	return r.rdb.Ping(context.TODO()).Err()
}

func (r *redisStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	c := context.TODO()
	if off == 0 && limit < 0 {
		data, err := r.rdb.Get(c, key).Bytes()
		if err == redis.Nil {
			return nil, fmt.Errorf("%s: %w", key, os.ErrNotExist)
		}
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	end := int64(-1)
	if limit >= 0 {
		if limit == 0 {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		end = off + limit - 1
	}
	data, err := r.rdb.GetRange(c, key, off, end).Bytes()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		// GETRANGE cannot tell a missing key from an empty range
		n, err := r.rdb.Exists(c, key).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%s: %w", key, os.ErrNotExist)
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (r *redisStore) Put(key string, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	return r.rdb.Set(context.TODO(), key, data, 0).Err()
}

func (r *redisStore) Delete(key string) error {
	return r.rdb.Del(context.TODO(), key).Err()
}

var _ ObjectStore = (*redisStore)(nil)
