// pkg/store/store_test.go

package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, r io.ReadCloser, err error) string {
	t.Helper()
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

// testStorage puts every ObjectStore implementation through the same
// paces: ranged reads, overwrites, missing keys and nested key names.
func testStorage(t *testing.T, s ObjectStore) {
	t.Helper()
	require.NoError(t, s.Create())

	_, err := s.Get("not_exists", 0, -1)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, s.Put("test", bytes.NewReader([]byte("hello world"))))
	rc, err := s.Get("test", 0, -1)
	require.Equal(t, "hello world", readAll(t, rc, err))
	rc, err = s.Get("test", 6, -1)
	require.Equal(t, "world", readAll(t, rc, err))
	rc, err = s.Get("test", 0, 5)
	require.Equal(t, "hello", readAll(t, rc, err))
	rc, err = s.Get("test", 3, 4)
	require.Equal(t, "lo w", readAll(t, rc, err))

	require.NoError(t, s.Put("test", bytes.NewReader([]byte("overwritten"))))
	rc, err = s.Get("test", 0, -1)
	require.Equal(t, "overwritten", readAll(t, rc, err))

	require.NoError(t, s.Delete("test"))
	_, err = s.Get("test", 0, -1)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.NoError(t, s.Delete("test"))

	require.NoError(t, s.Put("a/b/c", bytes.NewReader([]byte("nested"))))
	rc, err = s.Get("a/b/c", 0, -1)
	require.Equal(t, "nested", readAll(t, rc, err))
	require.NoError(t, s.Delete("a/b/c"))
}

func TestMemStore(t *testing.T) {
	testStorage(t, NewMem("test"))
}

func TestDiskStore(t *testing.T) {
	testStorage(t, NewDisk(t.TempDir()))
}

func TestBoltStore(t *testing.T) {
	s, err := NewBolt(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	testStorage(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.SkipNow()
	}
	s, err := NewRedis(addr)
	require.NoError(t, err)
	testStorage(t, s)
}

func TestSftpStore(t *testing.T) {
	host := os.Getenv("SFTP_HOST")
	if host == "" {
		t.SkipNow()
	}
	s, err := NewSftp(host, os.Getenv("SFTP_USER"), os.Getenv("SFTP_PASS"))
	require.NoError(t, err)
	testStorage(t, s)
}

func TestCreateStorage(t *testing.T) {
	s, err := CreateStorage("mem", "x", "", "")
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = CreateStorage("MEM", "x", "", "")
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = CreateStorage("carrier-pigeon", "", "", "")
	require.Error(t, err)
}

func TestWithPrefix(t *testing.T) {
	base := NewMem("p")
	s := WithPrefix(base, "vol/")
	require.NoError(t, s.Put("k", bytes.NewReader([]byte("v"))))
	rc, err := base.Get("vol/k", 0, -1)
	require.Equal(t, "v", readAll(t, rc, err))
	rc, err = s.Get("k", 0, -1)
	require.Equal(t, "v", readAll(t, rc, err))
	require.NoError(t, s.Delete("k"))
	_, err = base.Get("vol/k", 0, -1)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSharded(t *testing.T) {
	s, err := NewSharded("mem", "shard-%d", "", "", 3)
	require.NoError(t, err)
	testStorage(t, s)

	// every shard ends up holding something
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("key-%d", i), bytes.NewReader([]byte("x"))))
	}
	for i, st := range s.(*sharded).stores {
		require.NotEmpty(t, st.(*memStore).objects, "shard %d is empty", i)
	}

	_, err = NewSharded("mem", "shard-%d", "", "", 1)
	require.Error(t, err)
}
