// pkg/store/source.go

package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/check"
	"github.com/neveralso/Diving-Into-HFS/pkg/stream"
	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

// ObjectSource serves a named stream stored as one object per chunk.
// Each object holds the chunk data followed by its checksum as a big
// endian uint32, so data and checksum travel together. Objects are
// always fetched whole; only the last chunk of a stream may be short.
type ObjectSource struct {
	store     ObjectStore
	name      string
	shard     uint8
	chunkSize int
}

var _ stream.Source = (*ObjectSource)(nil)

func NewObjectSource(store ObjectStore, name string, chunkSize int) *ObjectSource {
	return &ObjectSource{
		store:     store,
		name:      name,
		shard:     uint8(xxhash.Sum64String(name)),
		chunkSize: chunkSize,
	}
}

func (s *ObjectSource) Name() string { return s.name }

func chunkKey(shard uint8, name string, indx int64, chunkSize int) string {
	return fmt.Sprintf("chunks/%02x/%s/%d_%d", shard, name, indx, chunkSize)
}

func (s *ObjectSource) key(indx int64) string {
	return chunkKey(s.shard, s.name, indx, s.chunkSize)
}

func (s *ObjectSource) object(indx int64) ([]byte, error) {
	in, err := s.store.Get(s.key(indx), 0, -1)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	raw, err := io.ReadAll(in)
	if err != nil {
		return nil, err
	}
	if len(raw) < check.Size {
		return nil, fmt.Errorf("chunk object %s is truncated: %d bytes", s.key(indx), len(raw))
	}
	return raw, nil
}

func (s *ObjectSource) ReadChunk(pos int64, p, sums []byte) (int, error) {
	if sums == nil {
		return s.readThrough(pos, p)
	}
	if pos%int64(s.chunkSize) != 0 {
		return 0, fmt.Errorf("position %d of %s is not chunk aligned", pos, s.name)
	}
	nchunks := utils.Min(len(p)/s.chunkSize, len(sums)/check.Size)
	read := 0
	for i := 0; i < nchunks; i++ {
		raw, err := s.object(pos/int64(s.chunkSize) + int64(i))
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return 0, err
		}
		data := raw[:len(raw)-check.Size]
		copy(p[read:], data)
		copy(sums[i*check.Size:], raw[len(raw)-check.Size:])
		read += len(data)
		if len(data) < s.chunkSize {
			break
		}
	}
	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

// readThrough reads without checksums, stripping the trailers.
func (s *ObjectSource) readThrough(pos int64, p []byte) (int, error) {
	indx := pos / int64(s.chunkSize)
	skip := int(pos - indx*int64(s.chunkSize))
	read := 0
	for read < len(p) {
		raw, err := s.object(indx)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return 0, err
		}
		data := raw[:len(raw)-check.Size]
		if skip >= len(data) {
			break
		}
		read += copy(p[read:], data[skip:])
		skip = 0
		if len(data) < s.chunkSize {
			break
		}
		indx++
	}
	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

func (s *ObjectSource) ChunkStart(pos int64) int64 {
	return pos / int64(s.chunkSize) * int64(s.chunkSize)
}

// SeekToNewSource reports false, a single store holds one copy; use
// Replicated for failover.
func (s *ObjectSource) SeekToNewSource(pos int64) (bool, error) {
	return false, nil
}

// Close is a no-op, the underlying store is shared.
func (s *ObjectSource) Close() error { return nil }

// ObjectWriter writes a stream into chunk objects with checksum
// trailers, one Put per full chunk.
type ObjectWriter struct {
	store     ObjectStore
	name      string
	shard     uint8
	sum       check.Checksum
	chunkSize int
	buf       []byte
	fill      int
	indx      int64
	total     int64
}

func CreateObject(store ObjectStore, name, algo string, chunkSize int) (*ObjectWriter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	mk, err := check.Lookup(algo)
	if err != nil {
		return nil, err
	}
	return &ObjectWriter{
		store:     store,
		name:      name,
		shard:     uint8(xxhash.Sum64String(name)),
		sum:       mk(),
		chunkSize: chunkSize,
		buf:       utils.Alloc(chunkSize),
	}, nil
}

func (w *ObjectWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		room := w.chunkSize - w.fill
		if room > len(p) {
			room = len(p)
		}
		copy(w.buf[w.fill:], p[:room])
		w.fill += room
		p = p[room:]
		if w.fill == w.chunkSize {
			if err := w.putChunk(); err != nil {
				return n - len(p), err
			}
		}
	}
	return n, nil
}

func (w *ObjectWriter) putChunk() error {
	w.sum.Update(w.buf[:w.fill])
	data := make([]byte, w.fill+check.Size)
	copy(data, w.buf[:w.fill])
	binary.BigEndian.PutUint32(data[w.fill:], w.sum.Value())
	w.sum.Reset()
	key := chunkKey(w.shard, w.name, w.indx, w.chunkSize)
	if err := w.store.Put(key, bytes.NewReader(data)); err != nil {
		return err
	}
	w.total += int64(w.fill)
	w.indx++
	w.fill = 0
	return nil
}

// Size returns the number of data bytes written so far.
func (w *ObjectWriter) Size() int64 { return w.total + int64(w.fill) }

// Close flushes a trailing partial chunk.
func (w *ObjectWriter) Close() error {
	var err error
	if w.fill > 0 {
		err = w.putChunk()
	}
	utils.Free(w.buf)
	w.buf = nil
	return err
}

func chunkConfig(algo string, chunkSize int, verify bool, retries int) (stream.Config, error) {
	conf := stream.Config{Verify: verify, ChunkSize: chunkSize, Retries: retries}
	if verify {
		mk, err := check.Lookup(algo)
		if err != nil {
			return conf, err
		}
		conf.Sum = mk()
	}
	return conf, nil
}

// OpenObject opens a named stream stored as chunk objects for
// verified reading.
func OpenObject(st ObjectStore, name, algo string, chunkSize int, verify bool, retries int) (*stream.Reader, error) {
	conf, err := chunkConfig(algo, chunkSize, verify, retries)
	if err != nil {
		return nil, err
	}
	return stream.NewReader(name, NewObjectSource(st, name, chunkSize), conf)
}
