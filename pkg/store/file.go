// pkg/store/file.go

package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neveralso/Diving-Into-HFS/pkg/check"
	"github.com/neveralso/Diving-Into-HFS/pkg/stream"
	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

// Checksums of a data file live in a hidden sidecar next to it. The
// sidecar starts with a 4 byte magic, a version byte, the checksum
// algorithm and the chunk size as a big endian uint32, followed by one
// big endian uint32 per chunk of data.
const (
	sumMagic      = "HCS\x00"
	sumVersion    = 1
	sumHeaderSize = 10
)

const (
	algoCRC32  = 1
	algoCRC32C = 2
)

func algoName(b byte) (string, error) {
	switch b {
	case algoCRC32:
		return "crc32", nil
	case algoCRC32C:
		return "crc32c", nil
	}
	return "", fmt.Errorf("unknown checksum algorithm %d", b)
}

func algoByte(name string) (byte, error) {
	switch name {
	case "", "crc32":
		return algoCRC32, nil
	case "crc32c":
		return algoCRC32C, nil
	}
	return 0, fmt.Errorf("unknown checksum algorithm %q", name)
}

// SumPath returns the checksum sidecar path for a data file.
func SumPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, "."+base+".hcs")
}

// FileSource serves a local file whose checksums live in a sidecar
// next to it. A file without a sidecar is served unchecked, one byte
// per chunk.
type FileSource struct {
	name      string
	f         *os.File
	sums      *os.File
	algo      string
	chunkSize int
}

var _ stream.Source = (*FileSource)(nil)

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &FileSource{name: path, f: f, chunkSize: 1}
	sums, err := os.Open(SumPath(path))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	var hdr [sumHeaderSize]byte
	if _, err = io.ReadFull(sums, hdr[:]); err != nil {
		_ = f.Close()
		_ = sums.Close()
		return nil, fmt.Errorf("read checksum header of %s: %s", path, err)
	}
	if string(hdr[:4]) != sumMagic || hdr[4] != sumVersion {
		_ = f.Close()
		_ = sums.Close()
		return nil, fmt.Errorf("%s is not a checksum file", SumPath(path))
	}
	algo, err := algoName(hdr[5])
	if err != nil {
		_ = f.Close()
		_ = sums.Close()
		return nil, err
	}
	chunkSize := int(binary.BigEndian.Uint32(hdr[6:]))
	if chunkSize <= 0 {
		_ = f.Close()
		_ = sums.Close()
		return nil, fmt.Errorf("invalid chunk size %d in %s", chunkSize, SumPath(path))
	}
	s.sums = sums
	s.algo = algo
	s.chunkSize = chunkSize
	return s, nil
}

func (s *FileSource) Name() string { return s.name }

// Algo returns the checksum algorithm of the sidecar, or "" without
// one.
func (s *FileSource) Algo() string { return s.algo }

func (s *FileSource) ChunkSize() int { return s.chunkSize }

// Verified reports whether the file has a checksum sidecar.
func (s *FileSource) Verified() bool { return s.sums != nil }

func (s *FileSource) ReadChunk(pos int64, p, sums []byte) (int, error) {
	if sums == nil {
		n, err := s.f.ReadAt(p, pos)
		if n > 0 {
			return n, nil
		}
		return 0, err
	}
	if pos%int64(s.chunkSize) != 0 {
		return 0, fmt.Errorf("position %d of %s is not chunk aligned", pos, s.name)
	}
	nchunks := utils.Min(len(p)/s.chunkSize, len(sums)/check.Size)
	n, err := s.f.ReadAt(p[:nchunks*s.chunkSize], pos)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	covered := (n + s.chunkSize - 1) / s.chunkSize
	sumOff := sumHeaderSize + pos/int64(s.chunkSize)*check.Size
	nr, serr := s.sums.ReadAt(sums[:covered*check.Size], sumOff)
	if nr < covered*check.Size {
		return 0, fmt.Errorf("read checksums of %s at %d: %v", s.name, pos, serr)
	}
	return n, nil
}

func (s *FileSource) ChunkStart(pos int64) int64 {
	return pos / int64(s.chunkSize) * int64(s.chunkSize)
}

// SeekToNewSource reports false, a local file has no replicas.
func (s *FileSource) SeekToNewSource(pos int64) (bool, error) {
	return false, nil
}

func (s *FileSource) Close() error {
	err := s.f.Close()
	if s.sums != nil {
		if serr := s.sums.Close(); err == nil {
			err = serr
		}
	}
	return err
}

// FileWriter writes a data file and its checksum sidecar together.
type FileWriter struct {
	f         *os.File
	sf        *os.File
	sums      *bufio.Writer
	sum       check.Checksum
	chunkSize int
	fill      int
}

// CreateFile creates path and its checksum sidecar; data written to
// the returned writer is checksummed one chunk at a time.
func CreateFile(path, algo string, chunkSize int) (*FileWriter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	ab, err := algoByte(algo)
	if err != nil {
		return nil, err
	}
	mk, err := check.Lookup(algo)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sf, err := os.Create(SumPath(path))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sums := bufio.NewWriter(sf)
	var hdr [sumHeaderSize]byte
	copy(hdr[:], sumMagic)
	hdr[4] = sumVersion
	hdr[5] = ab
	binary.BigEndian.PutUint32(hdr[6:], uint32(chunkSize))
	if _, err = sums.Write(hdr[:]); err != nil {
		_ = f.Close()
		_ = sf.Close()
		return nil, err
	}
	return &FileWriter{f: f, sf: sf, sums: sums, sum: mk(), chunkSize: chunkSize}, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	for b := p[:n]; len(b) > 0; {
		room := w.chunkSize - w.fill
		if room > len(b) {
			room = len(b)
		}
		w.sum.Update(b[:room])
		w.fill += room
		b = b[room:]
		if w.fill == w.chunkSize {
			if werr := w.flushSum(); werr != nil {
				return n, werr
			}
		}
	}
	return n, err
}

func (w *FileWriter) flushSum() error {
	var buf [check.Size]byte
	binary.BigEndian.PutUint32(buf[:], w.sum.Value())
	w.sum.Reset()
	w.fill = 0
	_, err := w.sums.Write(buf[:])
	return err
}

// Close flushes the checksum of a trailing partial chunk and closes
// both files.
func (w *FileWriter) Close() error {
	var err error
	if w.fill > 0 {
		err = w.flushSum()
	}
	if ferr := w.sums.Flush(); err == nil {
		err = ferr
	}
	if ferr := w.sf.Close(); err == nil {
		err = ferr
	}
	if ferr := w.f.Close(); err == nil {
		err = ferr
	}
	return err
}

// OpenFile opens a local file for verified reading. A file without a
// checksum sidecar is served as is.
func OpenFile(path string, verify bool, retries int) (*stream.Reader, error) {
	src, err := NewFileSource(path)
	if err != nil {
		return nil, err
	}
	conf, err := chunkConfig(src.Algo(), src.ChunkSize(), verify && src.Verified(), retries)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	r, err := stream.NewReader(path, src, conf)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return r, nil
}
