// pkg/compress/compress.go

// Package compress provides the block compressors a volume can be
// formatted with.
package compress

import (
	"strings"

	"github.com/DataDog/zstd"
	lz4 "github.com/hungys/go-lz4"
	"github.com/pkg/errors"
)

// Compressor compresses and decompresses whole blocks.
type Compressor interface {
	Name() string
	// CompressBound returns the worst case compressed size of l input bytes.
	CompressBound(l int) int
	Compress(dst, src []byte) (int, error)
	Decompress(dst, src []byte) (int, error)
}

// NewCompressor returns the compressor registered under name, or nil
// when the name is unknown. The empty name means no compression.
func NewCompressor(name string) Compressor {
	switch strings.ToLower(name) {
	case "", "none":
		return noOp{}
	case "lz4":
		return lz4Codec{}
	case "zstd":
		return zStandard{level: 1}
	}
	return nil
}

type noOp struct{}

func (noOp) Name() string            { return "none" }
func (noOp) CompressBound(l int) int { return l }

func (noOp) Compress(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, errors.Errorf("buffer too small: %d < %d", len(dst), len(src))
	}
	return copy(dst, src), nil
}

func (noOp) Decompress(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, errors.Errorf("buffer too small: %d < %d", len(dst), len(src))
	}
	return copy(dst, src), nil
}

type lz4Codec struct{}

func (lz4Codec) Name() string            { return "LZ4" }
func (lz4Codec) CompressBound(l int) int { return lz4.CompressBound(l) }

func (lz4Codec) Compress(dst, src []byte) (int, error) {
	return lz4.CompressDefault(src, dst)
}

func (lz4Codec) Decompress(dst, src []byte) (int, error) {
	return lz4.DecompressSafe(src, dst)
}

type zStandard struct {
	level int
}

func (zStandard) Name() string            { return "Zstd" }
func (zStandard) CompressBound(l int) int { return zstd.CompressBound(l) }

func (z zStandard) Compress(dst, src []byte) (int, error) {
	d, err := zstd.CompressLevel(dst[:0], src, z.level)
	if err != nil {
		return 0, err
	}
	if len(d) > len(dst) {
		return 0, errors.Errorf("compressed block of %d bytes overflows the buffer", len(d))
	}
	return copy(dst[:len(d)], d), nil
}

func (zStandard) Decompress(dst, src []byte) (int, error) {
	d, err := zstd.Decompress(dst[:0], src)
	if err != nil {
		return 0, err
	}
	if len(d) > len(dst) {
		return 0, errors.Errorf("decompressed block of %d bytes overflows the buffer", len(d))
	}
	return copy(dst[:len(d)], d), nil
}
