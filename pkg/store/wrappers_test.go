// pkg/store/wrappers_test.go

package store

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neveralso/Diving-Into-HFS/pkg/compress"
)

func TestRsaKeyPem(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pem, err := ExportRsaPrivateKeyToPem(key, "mypass")
	require.NoError(t, err)
	got, err := ParseRsaPrivateKeyFromPem(pem, "mypass")
	require.NoError(t, err)
	require.True(t, key.Equal(got))

	_, err = ParseRsaPrivateKeyFromPem(pem, "")
	require.Error(t, err)
	_, err = ParseRsaPrivateKeyFromPem(pem, "wrong")
	require.Error(t, err)

	plain, err := ExportRsaPrivateKeyToPem(key, "")
	require.NoError(t, err)
	got, err = ParseRsaPrivateKeyFromPem(plain, "")
	require.NoError(t, err)
	require.True(t, key.Equal(got))
}

func TestAESEncryptor(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	enc := NewAESEncryptor(NewRSAEncryptor(key))

	data := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, err := enc.Encrypt(data)
	require.NoError(t, err)
	require.NotContains(t, string(ciphertext), "quick brown")

	plain, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, data, plain)

	_, err = enc.Decrypt(ciphertext[:2])
	require.Error(t, err)

	ciphertext[len(ciphertext)-1] ^= 1
	_, err = enc.Decrypt(ciphertext)
	require.Error(t, err)
}

func TestEncryptedStore(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	s := NewEncrypted(NewMem("enc"), NewAESEncryptor(NewRSAEncryptor(key)))
	testStorage(t, s)
}

func TestCompressedStore(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		comp := compress.NewCompressor(name)
		require.NotNil(t, comp, name)
		testStorage(t, NewCompressed(NewMem("comp-"+name), comp))
	}
}

func TestLimitedStore(t *testing.T) {
	testStorage(t, NewLimited(NewMem("bw"), 1<<20, 1<<20))
}

type countingStore struct {
	ObjectStore
	gets int64
}

func (c *countingStore) Get(key string, off, limit int64) (io.ReadCloser, error) {
	atomic.AddInt64(&c.gets, 1)
	return c.ObjectStore.Get(key, off, limit)
}

func TestCachedStore(t *testing.T) {
	base := &countingStore{ObjectStore: NewMem("cache")}
	s := NewCached(base, 1<<20)

	require.NoError(t, s.Put("k", bytes.NewReader([]byte("hello world"))))
	rc, err := s.Get("k", 0, -1)
	require.Equal(t, "hello world", readAll(t, rc, err))
	require.EqualValues(t, 1, atomic.LoadInt64(&base.gets))

	// ranged reads of a hot key never touch the backend
	rc, err = s.Get("k", 6, -1)
	require.Equal(t, "world", readAll(t, rc, err))
	rc, err = s.Get("k", 0, 3)
	require.Equal(t, "hel", readAll(t, rc, err))
	require.EqualValues(t, 1, atomic.LoadInt64(&base.gets))

	// writes invalidate
	require.NoError(t, s.Put("k", bytes.NewReader([]byte("fresh"))))
	rc, err = s.Get("k", 0, -1)
	require.Equal(t, "fresh", readAll(t, rc, err))
	require.EqualValues(t, 2, atomic.LoadInt64(&base.gets))

	require.NoError(t, s.Delete("k"))
	_, err = s.Get("k", 0, -1)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestCacheEviction(t *testing.T) {
	base := NewMem("evict")
	s := NewCached(base, 3000).(*cached)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, base.Put(key, bytes.NewReader(bytes.Repeat([]byte{byte(i)}, 1000))))
		rc, err := s.Get(key, 0, -1)
		require.Len(t, readAll(t, rc, err), 1000)
	}
	cnt, used := s.stats()
	require.LessOrEqual(t, cnt, int64(3))
	require.Less(t, used, int64(3000))
}

func TestPageReader(t *testing.T) {
	p := NewPage([]byte("0123456789"))
	r := NewPageReader(p, 2, 5)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "23456", string(data))
	require.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	require.Error(t, err)

	r = NewPageReader(p, 4, -1)
	data, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "456789", string(data))
	require.NoError(t, r.Close())

	r = NewPageReader(p, 20, -1)
	data, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, data)
	require.NoError(t, r.Close())
	p.Release()
}

func TestSingleflight(t *testing.T) {
	var con Controller
	var calls int32
	release := make(chan struct{})
	results := make([]string, 8)
	var ready, wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		ready.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready.Done()
			p, err := con.Execute("key", func() (*Page, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				np := NewOffPage(4)
				copy(np.Data, "data")
				return np, nil
			})
			if err == nil {
				results[i] = string(p.Data)
			}
			p.Release()
		}(i)
	}
	ready.Wait()
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		require.Equal(t, "data", r)
	}
}
