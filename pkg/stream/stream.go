// pkg/stream/stream.go

// Package stream reads chunk-aligned data with per-chunk checksum
// verification, buffered seeking and bounded retry over replaceable
// sources.
package stream

import "github.com/neveralso/Diving-Into-HFS/pkg/check"

// chunksPerRead is the maximum number of checksum chunks requested
// from a source in one ReadChunk call.
const chunksPerRead = 32

// Source supplies chunk-aligned data and the matching checksums.
//
// There are two cases implementors need to handle:
//
// (a) sums is nil: verification is off, any positive count may be
// returned; simply pass through to the underlying data.
//
// (b) sums is not nil: pos and len(p) are at least one chunk, and
// len(sums) is a multiple of check.Size. Read a whole number of
// chunks into p, bounded by len(p) and by len(sums)/check.Size chunks,
// and store one big-endian uint32 per chunk into sums front to back.
// len(p) may not be a multiple of the chunk size, in which case fewer
// bytes than len(p) are read. Only the last chunk of the data may be
// short.
//
// End of data is reported as (0, io.EOF).
type Source interface {
	// ReadChunk reads bytes starting at the chunk boundary pos into p,
	// and the covering checksums into sums.
	ReadChunk(pos int64, p, sums []byte) (int, error)

	// ChunkStart returns the starting offset of the chunk containing pos.
	ChunkStart(pos int64) int64

	// SeekToNewSource switches to a different replica holding the same
	// content, positioned at pos. It reports false when no alternate
	// replica exists.
	SeekToNewSource(pos int64) (bool, error)

	Close() error
}

// Config controls buffering and verification of a Reader.
type Config struct {
	// Verify enables checksum verification. With Verify off or Sum
	// nil, data is passed through unchecked.
	Verify bool
	// Sum computes the running checksum, one value per chunk.
	Sum check.Checksum
	// ChunkSize is the number of data bytes covered by one checksum.
	ChunkSize int
	// ChecksumSize is the width of one stored checksum value in bytes.
	// Zero means check.Size; any other value is rejected.
	ChecksumSize int
	// Retries is the number of attempts for a chunk whose checksum
	// does not match, switching to another replica in between.
	// Zero means a single attempt.
	Retries int
}
