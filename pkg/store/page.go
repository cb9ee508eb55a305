// pkg/store/page.go

package store

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

type Page struct {
	refs    int32
	offHeap bool
	Data    []byte
}

// NewPage create a new page.
func NewPage(data []byte) *Page {
	return &Page{refs: 1, Data: data}
}

func NewOffPage(size int) *Page {
	if size <= 0 {
		panic("size of page should > 0")
	}
	p := utils.Alloc(size)
	page := &Page{refs: 1, offHeap: true, Data: p}
	runtime.SetFinalizer(page, func(p *Page) {
		refCnt := atomic.LoadInt32(&p.refs)
		if refCnt != 0 {
			logger.Errorf("refcount of page %p is not zero: %d", p, refCnt)
			if refCnt > 0 {
				p.Release()
			}
		}
	})
	return page
}

// Acquire increase the refcount
func (p *Page) Acquire() {
	atomic.AddInt32(&p.refs, 1)
}

// Release decreases the refcount
func (p *Page) Release() {
	if atomic.AddInt32(&p.refs, -1) == 0 {
		if p.offHeap {
			utils.Free(p.Data)
		}
		p.Data = nil
	}
}

// PageReader reads a window of a page, holding a reference until it
// is closed.
type PageReader struct {
	p        *Page
	off, end int64
}

// NewPageReader returns a reader over limit bytes of p starting at
// off. A negative limit means the rest of the page.
func NewPageReader(p *Page, off, limit int64) *PageReader {
	p.Acquire()
	l := int64(len(p.Data))
	if off > l {
		off = l
	}
	end := l
	if limit >= 0 && off+limit < l {
		end = off + limit
	}
	return &PageReader{p, off, end}
}

func (r *PageReader) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if r.p == nil {
		return 0, errors.New("page is already released")
	}
	if r.off >= r.end {
		return 0, io.EOF
	}
	n := copy(buf, r.p.Data[r.off:r.end])
	r.off += int64(n)
	if n < len(buf) {
		return n, io.EOF
	}
	return n, nil
}

func (r *PageReader) Close() error {
	if r.p != nil {
		r.p.Release()
		r.p = nil
	}
	return nil
}
