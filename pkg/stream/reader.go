// pkg/stream/reader.go

package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/neveralso/Diving-Into-HFS/pkg/check"
	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

var logger = utils.GetLogger("hfs")

// Reader is a buffered, seekable view of a Source that verifies every
// byte against its chunk checksum before handing it out. All methods
// are safe for concurrent use; at most one proceeds at a time.
type Reader struct {
	mu   sync.Mutex
	name string
	src  Source

	verify    bool
	sum       check.Checksum
	chunkSize int
	retries   int

	buf   []byte // one chunk of fetched data
	sums  []byte // stored checksums covering the last fetch
	pos   int    // read cursor inside buf
	count int    // bytes of valid data in buf

	// offset of the next chunk to fetch; always a chunk boundary
	chunkPos int64

	closed bool
}

var _ io.ReadCloser = (*Reader)(nil)
var _ io.ByteReader = (*Reader)(nil)
var _ io.ReaderAt = (*Reader)(nil)

// NewReader returns a verifying Reader over src. name appears in logs
// and checksum errors only.
func NewReader(name string, src Source, conf Config) (*Reader, error) {
	if conf.ChunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", conf.ChunkSize)
	}
	size := conf.ChecksumSize
	if size == 0 {
		size = check.Size
	}
	if conf.Verify && conf.Sum != nil && size != check.Size {
		return nil, fmt.Errorf("unsupported checksum size %d, only %d bytes checksums are supported", size, check.Size)
	}
	retries := conf.Retries
	if retries <= 0 {
		retries = 1
	}
	return &Reader{
		name:      name,
		src:       src,
		verify:    conf.Verify,
		sum:       conf.Sum,
		chunkSize: conf.ChunkSize,
		retries:   retries,
		buf:       utils.Alloc(conf.ChunkSize),
		sums:      make([]byte, chunksPerRead*size),
	}, nil
}

func (r *Reader) needChecksum() bool {
	return r.verify && r.sum != nil
}

// Read reads up to len(p) verified bytes. It returns what is available
// without blocking for the rest, and (0, io.EOF) at the end of data.
// An empty p always yields (0, nil).
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errClosed
	}
	return r.readLocked(p)
}

func (r *Reader) readLocked(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := 0
	for {
		nread, err := r.read1(p[n:])
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, nil
			}
			return n, err
		}
		n += nread
		if n >= len(p) || nread == 0 {
			return n, nil
		}
	}
}

// read1 reads once, from the buffered window if it has bytes left,
// otherwise from the source.
func (r *Reader) read1(p []byte) (int, error) {
	avail := r.count - r.pos
	if avail <= 0 {
		if len(p) >= r.chunkSize {
			// read chunks into the caller's buffer directly, avoiding a copy
			return r.readChecksumChunk(p)
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
		if r.count <= 0 {
			return 0, io.EOF
		}
		avail = r.count
	}
	cnt := utils.Min(avail, len(p))
	copy(p, r.buf[r.pos:r.pos+cnt])
	r.pos += cnt
	return cnt, nil
}

// fill loads the next chunk into the internal buffer. The window must
// be fully consumed before calling; count stays 0 at the end of data.
func (r *Reader) fill() error {
	n, err := r.readChecksumChunk(r.buf)
	r.count = n
	if err == io.EOF {
		return nil
	}
	return err
}

// readChecksumChunk fetches one or more whole chunks into p at the
// current chunk boundary and verifies them. On a checksum mismatch it
// switches to an alternate replica and retries, at most retries
// attempts in total. The buffered window is invalidated up front so
// that every byte handed out later went through verification.
func (r *Reader) readChecksumChunk(p []byte) (int, error) {
	r.count = 0
	r.pos = 0

	retriesLeft := r.retries
	for {
		retriesLeft--

		var sums []byte
		if r.needChecksum() {
			sums = r.sums
		}
		read, err := r.src.ReadChunk(r.chunkPos, p, sums)
		if err == nil && read > 0 && r.needChecksum() {
			err = r.verifySums(p, read)
		}
		if err == nil {
			r.chunkPos += int64(read)
			return read, nil
		}
		var ce *ChecksumError
		if !errors.As(err, &ce) {
			return 0, err
		}
		logger.Infof("found checksum error: %s", err)
		if retriesLeft == 0 {
			return 0, err
		}
		// Try a new replica. If neither the data nor the checksums can
		// come from somewhere else, reading again would fail the same
		// way, so give up now.
		ok, serr := r.src.SeekToNewSource(r.chunkPos)
		if serr != nil {
			return 0, serr
		}
		if !ok {
			return 0, err
		}
		if err = r.seekLocked(r.chunkPos); err != nil {
			return 0, err
		}
	}
}

// verifySums checks read bytes of p, fetched at the current chunk
// boundary, against the stored checksums, one chunk at a time.
func (r *Reader) verifySums(p []byte, read int) error {
	leftToVerify := read
	verifyOff := 0
	for i := 0; leftToVerify > 0; i++ {
		n := utils.Min(leftToVerify, r.chunkSize)
		r.sum.Update(p[verifyOff : verifyOff+n])
		want := binary.BigEndian.Uint32(r.sums[i*check.Size:])
		got := r.sum.Value()
		r.sum.Reset()
		if want != got {
			return &ChecksumError{Name: r.name, Off: r.chunkPos + int64(verifyOff), Want: want, Got: got}
		}
		leftToVerify -= n
		verifyOff += n
	}
	return nil
}

// ReadByte reads one verified byte, io.EOF at the end of data.
func (r *Reader) ReadByte() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errClosed
	}
	if r.pos >= r.count {
		if err := r.fill(); err != nil {
			return 0, err
		}
		if r.pos >= r.count {
			return 0, io.EOF
		}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Pos returns the offset of the next byte Read would return.
func (r *Reader) Pos() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posLocked()
}

func (r *Reader) posLocked() int64 {
	left := int64(r.count - r.pos)
	if left < 0 {
		left = 0
	}
	return r.chunkPos - left
}

// Available returns the number of verified bytes buffered ahead of the
// read cursor.
func (r *Reader) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := r.count - r.pos; n > 0 {
		return n
	}
	return 0
}

// Seek moves the read position to pos; the next Read returns bytes
// from there. Seeking past the end of data is not an error, a later
// Read just reports io.EOF. A negative pos is silently ignored.
func (r *Reader) Seek(pos int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errClosed
	}
	return r.seekLocked(pos)
}

func (r *Reader) seekLocked(pos int64) error {
	if pos < 0 {
		return nil
	}
	// the target may still be inside the buffered window
	start := r.chunkPos - int64(r.count)
	if pos >= start && pos < r.chunkPos {
		r.pos = int(pos - start)
		return nil
	}

	r.resetState()

	// realign to a chunk boundary, then discard up to the target
	// through the verified read path
	r.chunkPos = r.src.ChunkStart(pos)
	delta := int(pos - r.chunkPos)
	if delta > 0 {
		tmp := make([]byte, delta)
		n := 0
		for n < delta {
			nread, err := r.readLocked(tmp[n:])
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if nread == 0 {
				break
			}
			n += nread
		}
	}
	return nil
}

// Skip discards the next n bytes. It reports n even when that runs
// past the end of data; a later Read reports io.EOF then. A
// nonpositive n skips nothing.
func (r *Reader) Skip(n int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errClosed
	}
	if n <= 0 {
		return 0, nil
	}
	if err := r.seekLocked(r.posLocked() + n); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadAt reads up to len(p) bytes starting at offset off, leaving the
// stream position where it was. Unlike io.ReaderAt it may return fewer
// bytes than requested with a nil error; at the end of data it returns
// (0, io.EOF).
func (r *Reader) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("invalid position %d", off)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errClosed
	}
	oldPos := r.posLocked()
	defer func() {
		if serr := r.seekLocked(oldPos); serr != nil {
			err = serr
		}
	}()
	if err = r.seekLocked(off); err != nil {
		return 0, err
	}
	return r.readLocked(p)
}

// ReadFullAt reads exactly len(p) bytes starting at offset off,
// leaving the stream position where it was. It returns
// io.ErrUnexpectedEOF when the data ends first.
func (r *Reader) ReadFullAt(p []byte, off int64) error {
	if off < 0 {
		return fmt.Errorf("invalid position %d", off)
	}
	nread := 0
	for nread < len(p) {
		n, err := r.ReadAt(p[nread:], off+int64(nread))
		if err == io.EOF || err == nil && n == 0 {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		nread += n
	}
	return nil
}

// SeekToNewSource switches to a different replica of the same content
// and positions the stream at pos. It reports false when the source
// has no alternate replica.
func (r *Reader) SeekToNewSource(pos int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, errClosed
	}
	ok, err := r.src.SeekToNewSource(pos)
	if err != nil || !ok {
		return ok, err
	}
	return true, r.seekLocked(pos)
}

// MarkSupported reports whether Mark and Reset work; they never do.
func (r *Reader) MarkSupported() bool { return false }

// Mark is a no-op, the stream cannot replay from a mark.
func (r *Reader) Mark(readLimit int) {}

// Reset always fails, use Seek instead.
func (r *Reader) Reset() error {
	return fmt.Errorf("mark/reset not supported: %w", errors.ErrUnsupported)
}

// resetState drops the buffered window and the running checksum.
func (r *Reader) resetState() {
	r.count = 0
	r.pos = 0
	if r.sum != nil {
		r.sum.Reset()
	}
}

// Close releases the buffer and closes the source. Closing twice is
// fine.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	utils.Free(r.buf)
	r.buf = nil
	r.count, r.pos = 0, 0
	return r.src.Close()
}
