// pkg/check/check.go

package check

import (
	"hash"
	"hash/crc32"
	"strings"

	"github.com/pkg/errors"
)

// Size is the width in bytes of every checksum value produced here.
const Size = 4

// A Checksum is a running 32-bit checksum of the bytes fed to Update.
// Value reports the checksum of everything written since the last Reset.
type Checksum interface {
	Update(p []byte)
	Value() uint32
	Reset()
}

type hash32 struct {
	h hash.Hash32
}

func (c *hash32) Update(p []byte) { _, _ = c.h.Write(p) }
func (c *hash32) Value() uint32   { return c.h.Sum32() }
func (c *hash32) Reset()          { c.h.Reset() }

// New wraps a hash.Hash32 as a Checksum.
func New(h hash.Hash32) Checksum { return &hash32{h} }

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NewCRC32 returns a CRC-32 (IEEE) checksum.
func NewCRC32() Checksum { return New(crc32.NewIEEE()) }

// NewCRC32C returns a CRC-32C (Castagnoli) checksum.
func NewCRC32C() Checksum { return New(crc32.New(castagnoli)) }

// Lookup returns the constructor for a checksum algorithm by name.
// The empty name selects CRC-32.
func Lookup(name string) (func() Checksum, error) {
	switch strings.ToLower(name) {
	case "", "crc32":
		return NewCRC32, nil
	case "crc32c":
		return NewCRC32C, nil
	}
	return nil, errors.Errorf("unknown checksum algorithm %q", name)
}
