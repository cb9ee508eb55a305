// pkg/store/file_test.go

package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neveralso/Diving-Into-HFS/pkg/stream"
)

func testPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i%251 + 1)
	}
	return data
}

func writeFile(t *testing.T, path string, data []byte, algo string, chunkSize int) {
	t.Helper()
	w, err := CreateFile(path, algo, chunkSize)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	data := testPattern(3000)
	writeFile(t, path, data, "crc32", 512)

	// the data file holds the plain bytes, the sidecar one checksum
	// per chunk
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, data, raw)
	st, err := os.Stat(SumPath(path))
	require.NoError(t, err)
	require.EqualValues(t, sumHeaderSize+6*4, st.Size())

	r, err := OpenFile(path, true, 3)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFileCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	data := testPattern(2048)
	writeFile(t, path, data, "crc32", 512)

	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{data[1100] ^ 0x5a}, 1100)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := OpenFile(path, true, 3)
	require.NoError(t, err)
	defer r.Close()
	_, err = io.ReadAll(r)
	require.True(t, stream.IsChecksumError(err))
	var ce *stream.ChecksumError
	require.ErrorAs(t, err, &ce)
	require.EqualValues(t, 1024, ce.Off)
	require.Equal(t, path, ce.Name)

	// with verification off the corrupt bytes come through
	r2, err := OpenFile(path, false, 1)
	require.NoError(t, err)
	defer r2.Close()
	got, err := io.ReadAll(r2)
	require.NoError(t, err)
	require.Len(t, got, len(data))
	require.NotEqual(t, data, got)
}

func TestFileNoSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	data := testPattern(1000)
	require.NoError(t, os.WriteFile(path, data, 0644))

	src, err := NewFileSource(path)
	require.NoError(t, err)
	require.False(t, src.Verified())
	require.Equal(t, 1, src.ChunkSize())
	require.NoError(t, src.Close())

	// asking for verification quietly degrades to a plain read
	r, err := OpenFile(path, true, 3)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestFileBadSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(SumPath(path), []byte("JUNKJUNKJUNK"), 0644))
	_, err := NewFileSource(path)
	require.Error(t, err)
}

func TestFileSeekAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	data := testPattern(5000)
	writeFile(t, path, data, "crc32c", 512)

	r, err := OpenFile(path, true, 3)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Seek(4000))
	buf := make([]byte, 100)
	_, err = io.ReadFull(r, buf)
	require.NoError(t, err)
	require.Equal(t, data[4000:4100], buf)

	require.NoError(t, r.ReadFullAt(buf, 777))
	require.Equal(t, data[777:877], buf)
	require.EqualValues(t, 4100, r.Pos())
}

func TestCreateFileRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := CreateFile(filepath.Join(dir, "a"), "crc32", 0)
	require.Error(t, err)
	_, err = CreateFile(filepath.Join(dir, "b"), "md5", 512)
	require.Error(t, err)
}
