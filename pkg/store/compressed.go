// pkg/store/compressed.go

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/neveralso/Diving-Into-HFS/pkg/compress"
)

type compressed struct {
	ObjectStore
	comp compress.Compressor
}

// NewCompressed returns a store that compresses whole objects before
// writing them. Each stored object starts with the original length as
// a big endian uint32 so Get can size the decompression buffer.
func NewCompressed(o ObjectStore, comp compress.Compressor) ObjectStore {
	return &compressed{o, comp}
}

func (c *compressed) String() string {
	return fmt.Sprintf("%s(%s)", c.ObjectStore, c.comp.Name())
}

func (c *compressed) Get(key string, off, limit int64) (io.ReadCloser, error) {
	r, err := c.ObjectStore.Get(key, 0, -1)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("decompress %s: truncated header", key)
	}
	size := binary.BigEndian.Uint32(raw)
	plain := make([]byte, size)
	if size > 0 {
		n, err := c.comp.Decompress(plain, raw[4:])
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %s", key, err)
		}
		plain = plain[:n]
	}
	l := int64(len(plain))
	if off > l {
		return nil, io.EOF
	}
	if limit < 0 || off+limit > l {
		limit = l - off
	}
	data := plain[off : off+limit]
	return io.NopCloser(bytes.NewBuffer(data)), nil
}

func (c *compressed) Put(key string, in io.Reader) error {
	plain, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+c.comp.CompressBound(len(plain)))
	binary.BigEndian.PutUint32(buf, uint32(len(plain)))
	n := 0
	if len(plain) > 0 {
		n, err = c.comp.Compress(buf[4:], plain)
		if err != nil {
			return err
		}
	}
	return c.ObjectStore.Put(key, bytes.NewReader(buf[:4+n]))
}

var _ ObjectStore = (*compressed)(nil)
