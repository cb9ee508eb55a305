// pkg/stream/reader_test.go

package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neveralso/Diving-Into-HFS/pkg/check"
)

// replica is one copy of the content: data plus the stored checksums.
// A corrupted replica keeps the checksums of the pristine data.
type replica struct {
	data, sums []byte
}

type testSource struct {
	replicas  []replica
	current   int
	chunkSize int

	fetches    int // ReadChunk calls
	plainReads int // ReadChunk calls with nil sums
	switches   int // successful SeekToNewSource calls
	closed     bool
}

func newTestSource(chunkSize int, rs ...replica) *testSource {
	return &testSource{replicas: rs, chunkSize: chunkSize}
}

func (s *testSource) ReadChunk(pos int64, p, sums []byte) (int, error) {
	s.fetches++
	if sums == nil {
		s.plainReads++
	}
	rep := s.replicas[s.current]
	avail := int64(len(rep.data)) - pos
	if avail <= 0 {
		return 0, io.EOF
	}
	if sums == nil {
		return copy(p, rep.data[pos:]), nil
	}
	if pos%int64(s.chunkSize) != 0 {
		return 0, fmt.Errorf("read at %d is not chunk aligned", pos)
	}
	if len(p) < s.chunkSize {
		return 0, fmt.Errorf("read of %d bytes is smaller than a chunk", len(p))
	}
	n := len(p)
	if max := len(sums) / check.Size * s.chunkSize; n > max {
		n = max
	}
	if int64(n) >= avail {
		n = int(avail) // the last chunk may be short
	} else {
		n = n / s.chunkSize * s.chunkSize
	}
	copy(p[:n], rep.data[pos:int(pos)+n])
	first := int(pos) / s.chunkSize
	nchunks := (n + s.chunkSize - 1) / s.chunkSize
	copy(sums, rep.sums[first*check.Size:(first+nchunks)*check.Size])
	return n, nil
}

func (s *testSource) ChunkStart(pos int64) int64 {
	return pos / int64(s.chunkSize) * int64(s.chunkSize)
}

func (s *testSource) SeekToNewSource(pos int64) (bool, error) {
	if s.current+1 >= len(s.replicas) {
		return false, nil
	}
	s.current++
	s.switches++
	return true, nil
}

func (s *testSource) Close() error {
	s.closed = true
	return nil
}

func testData(n int) []byte {
	d := make([]byte, n)
	for i := range d {
		d[i] = byte(i%251 + 1)
	}
	return d
}

func chunkSums(data []byte, chunkSize int) []byte {
	sum := check.NewCRC32()
	var out []byte
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		sum.Update(data[off:end])
		out = binary.BigEndian.AppendUint32(out, sum.Value())
		sum.Reset()
	}
	return out
}

func goodReplica(data []byte, chunkSize int) replica {
	return replica{data, chunkSums(data, chunkSize)}
}

// badReplica flips one byte of the data while keeping the pristine checksums.
func badReplica(data []byte, chunkSize, off int) replica {
	d := append([]byte{}, data...)
	d[off] ^= 0x5a
	return replica{d, chunkSums(data, chunkSize)}
}

func testReader(t *testing.T, src *testSource, retries int) *Reader {
	t.Helper()
	r, err := NewReader("test", src, Config{
		Verify:    true,
		Sum:       check.NewCRC32(),
		ChunkSize: src.chunkSize,
		Retries:   retries,
	})
	require.NoError(t, err)
	return r
}

func TestReadRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 100, 512, 1000} {
		data := testData(size)
		src := newTestSource(16, goodReplica(data, 16))
		r := testReader(t, src, 1)
		got, err := io.ReadAll(r)
		require.NoError(t, err, "size %d", size)
		require.True(t, bytes.Equal(data, got), "size %d", size)
		require.NoError(t, r.Close())
		require.True(t, src.closed)
	}
}

func TestReadByte(t *testing.T) {
	data := testData(40)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)
	for i := range data {
		b, err := r.ReadByte()
		require.NoError(t, err)
		require.Equal(t, data[i], b)
	}
	_, err := r.ReadByte()
	require.Equal(t, io.EOF, err)
}

func TestEmptyReadIsIdempotent(t *testing.T) {
	data := testData(10)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	n, err := r.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	_, err = io.ReadAll(r)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		n, err = r.Read(make([]byte, 8))
		require.Equal(t, io.EOF, err)
		require.Equal(t, 0, n)
	}
	n, err = r.Read(nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSeekWithinBufferNoRefetch(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	p := make([]byte, 10)
	_, err := io.ReadFull(r, p)
	require.NoError(t, err)
	require.Equal(t, data[:10], p)
	fetched := src.fetches

	// both targets sit inside the 16 bytes already buffered
	require.NoError(t, r.Seek(2))
	require.EqualValues(t, 2, r.Pos())
	_, err = io.ReadFull(r, p)
	require.NoError(t, err)
	require.Equal(t, data[2:12], p)

	require.NoError(t, r.Seek(15))
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, data[15], b)

	require.Equal(t, fetched, src.fetches, "in-window seeks must not touch the source")
}

func TestSeekRealignsToChunk(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	// the test source rejects unaligned fetches, so a correct read
	// after an arbitrary seek proves realignment
	require.NoError(t, r.Seek(37))
	require.EqualValues(t, 37, r.Pos())
	p := make([]byte, 20)
	_, err := io.ReadFull(r, p)
	require.NoError(t, err)
	require.Equal(t, data[37:57], p)
	require.EqualValues(t, 57, r.Pos())
}

func TestSeekNegativeIgnored(t *testing.T) {
	data := testData(64)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	p := make([]byte, 10)
	_, err := io.ReadFull(r, p)
	require.NoError(t, err)

	require.NoError(t, r.Seek(-1))
	require.EqualValues(t, 10, r.Pos())
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, data[10], b)
}

func TestSeekPastEnd(t *testing.T) {
	data := testData(100)
	src := newTestSource(32, goodReplica(data, 32))
	r := testReader(t, src, 1)

	// 110 lands in the chunk at 96, which still holds real bytes; the
	// discard scan stops at the end of data
	require.NoError(t, r.Seek(110))
	require.EqualValues(t, 100, r.Pos())
	n, err := r.Read(make([]byte, 8))
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
}

func TestSkip(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	n, err := r.Skip(-3)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
	n, err = r.Skip(0)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	n, err = r.Skip(37)
	require.NoError(t, err)
	require.EqualValues(t, 37, n)
	require.EqualValues(t, 37, r.Pos())
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, data[37], b)
}

func TestSkipPastEnd(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	// the skipped count is reported even though it runs past the end,
	// and the position parks at the start of the target chunk
	n, err := r.Skip(1000)
	require.NoError(t, err)
	require.EqualValues(t, 1000, n)
	require.EqualValues(t, 992, r.Pos())

	got, err := r.Read(make([]byte, 8))
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, got)
}

func TestAvailable(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	require.Equal(t, 0, r.Available())
	p := make([]byte, 10)
	_, err := io.ReadFull(r, p)
	require.NoError(t, err)
	require.Equal(t, 6, r.Available())

	_, err = io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, 0, r.Available())
}

func TestDirectReadBypassesBuffer(t *testing.T) {
	data := testData(1000)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	// a request of at least one chunk goes straight to the caller's buffer
	p := make([]byte, len(data))
	n, err := r.Read(p)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.True(t, bytes.Equal(data, p))
	require.Equal(t, 0, r.Available())
	require.EqualValues(t, len(data), r.Pos())
	// 32 chunks x 16 bytes per fetch: 512 then the 488 byte tail
	require.Equal(t, 2, src.fetches)
}

func TestRetrySwitchesSource(t *testing.T) {
	data := testData(100)
	src := newTestSource(16,
		badReplica(data, 16, 3),
		goodReplica(data, 16),
	)
	r := testReader(t, src, 2)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
	require.Equal(t, 1, src.switches)
}

func TestRetryBudgetSpentPerAttempt(t *testing.T) {
	data := testData(100)

	// two bad replicas cost two attempts, so a budget of two fails...
	src := newTestSource(16,
		badReplica(data, 16, 3),
		badReplica(data, 16, 70),
		goodReplica(data, 16),
	)
	r := testReader(t, src, 2)
	_, err := io.ReadAll(r)
	require.True(t, IsChecksumError(err))
	require.Equal(t, 1, src.switches)

	// ...and a budget of three succeeds
	src = newTestSource(16,
		badReplica(data, 16, 3),
		badReplica(data, 16, 70),
		goodReplica(data, 16),
	)
	r = testReader(t, src, 3)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
	require.Equal(t, 2, src.switches)
}

func TestSingleAttemptNeverSwitches(t *testing.T) {
	data := testData(100)
	src := newTestSource(16,
		badReplica(data, 16, 3),
		goodReplica(data, 16),
	)
	r := testReader(t, src, 1)

	_, err := io.ReadAll(r)
	require.True(t, IsChecksumError(err))
	require.Equal(t, 0, src.switches, "an exhausted budget must not probe replicas")
}

func TestChecksumErrorCarriesChunkOffset(t *testing.T) {
	data := testData(100)
	// corrupt byte 20 sits in the chunk starting at 16
	src := newTestSource(16, badReplica(data, 16, 20))
	r := testReader(t, src, 1)

	_, err := io.ReadAll(r)
	require.Error(t, err)
	var ce *ChecksumError
	require.True(t, errors.As(err, &ce))
	require.EqualValues(t, 16, ce.Off)
	require.Equal(t, "test", ce.Name)
	require.NotEqual(t, ce.Want, ce.Got)
}

func TestChecksumErrorDuringSeekDiscard(t *testing.T) {
	data := testData(100)
	// byte 66 is inside the chunk starting at 64; seeking to 70 has to
	// scan through it
	src := newTestSource(16, badReplica(data, 16, 66))
	r := testReader(t, src, 1)

	err := r.Seek(70)
	require.True(t, IsChecksumError(err))
	var ce *ChecksumError
	require.True(t, errors.As(err, &ce))
	require.EqualValues(t, 64, ce.Off)
}

func TestVerifyDisabledPassesCorruptData(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, badReplica(data, 16, 20))
	r, err := NewReader("test", src, Config{Verify: false, ChunkSize: 16})
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.True(t, bytes.Equal(src.replicas[0].data, got))
	require.Equal(t, src.fetches, src.plainReads, "disabled verification must hand nil sums to the source")
	require.Greater(t, src.fetches, 0)
}

func TestReadAtKeepsPosition(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	p := make([]byte, 10)
	_, err := io.ReadFull(r, p)
	require.NoError(t, err)
	require.EqualValues(t, 10, r.Pos())

	q := make([]byte, 20)
	n, err := r.ReadAt(q, 50)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, data[50:70], q)
	require.EqualValues(t, 10, r.Pos(), "positioned reads must not move the stream")

	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, data[10], b)
}

func TestReadAtPartialAndEnd(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	p := make([]byte, 10)
	n, err := r.ReadAt(p, 95)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, data[95:], p[:n])

	n, err = r.ReadAt(p, 100)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)

	n, err = r.ReadAt(p, 200)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)

	_, err = r.ReadAt(p, -1)
	require.Error(t, err)
	require.EqualValues(t, 0, r.Pos())
}

func TestReadFullAt(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	p := make([]byte, 30)
	require.NoError(t, r.ReadFullAt(p, 42))
	require.Equal(t, data[42:72], p)
	require.EqualValues(t, 0, r.Pos())

	err := r.ReadFullAt(make([]byte, 10), 95)
	require.Equal(t, io.ErrUnexpectedEOF, err)

	err = r.ReadFullAt(make([]byte, 10), 100)
	require.Equal(t, io.ErrUnexpectedEOF, err)

	require.Error(t, r.ReadFullAt(p, -3))
}

func TestConcurrentPositionedReads(t *testing.T) {
	data := testData(1000)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		off := i * 61
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := make([]byte, 13)
			if err := r.ReadFullAt(p, int64(off)); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(data[off:off+13], p) {
				errs <- fmt.Errorf("wrong data at %d", off)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 0, r.Pos())
}

func TestSeekToNewSource(t *testing.T) {
	data := testData(100)
	src := newTestSource(16, goodReplica(data, 16), goodReplica(data, 16))
	r := testReader(t, src, 1)

	ok, err := r.SeekToNewSource(40)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 40, r.Pos())
	require.Equal(t, 1, src.switches)

	// no replicas left
	ok, err = r.SeekToNewSource(10)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMarkResetUnsupported(t *testing.T) {
	data := testData(10)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	require.False(t, r.MarkSupported())
	r.Mark(100)
	err := r.Reset()
	require.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestConfigValidation(t *testing.T) {
	src := newTestSource(16, goodReplica(testData(10), 16))

	_, err := NewReader("test", src, Config{ChunkSize: 0})
	require.Error(t, err)

	_, err = NewReader("test", src, Config{Verify: true, Sum: check.NewCRC32(), ChunkSize: 16, ChecksumSize: 8})
	require.Error(t, err)

	// an odd width is fine as long as nothing is verified
	_, err = NewReader("test", src, Config{ChunkSize: 16, ChecksumSize: 8})
	require.NoError(t, err)

	_, err = NewReader("test", src, Config{Verify: true, Sum: check.NewCRC32(), ChunkSize: 16, ChecksumSize: 4})
	require.NoError(t, err)
}

func TestReadAfterClose(t *testing.T) {
	data := testData(10)
	src := newTestSource(16, goodReplica(data, 16))
	r := testReader(t, src, 1)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := r.Read(make([]byte, 4))
	require.ErrorContains(t, err, "closed")
	require.ErrorContains(t, r.Seek(0), "closed")
	_, err = r.Skip(1)
	require.ErrorContains(t, err, "closed")
}
