// pkg/store/replicated.go

package store

import (
	"fmt"

	"github.com/neveralso/Diving-Into-HFS/pkg/stream"
)

// Replicated serves one stream from several replicas. Whenever the
// engine asks for a new source the current replica is marked suspect
// and the next clean one takes over; a suspect replica is never used
// again by this instance. All replicas must share the chunk size.
type Replicated struct {
	sources []stream.Source
	suspect []bool
	current int
}

var _ stream.Source = (*Replicated)(nil)

func NewReplicated(sources ...stream.Source) (*Replicated, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no replicas given")
	}
	return &Replicated{
		sources: sources,
		suspect: make([]bool, len(sources)),
	}, nil
}

func (r *Replicated) ReadChunk(pos int64, p, sums []byte) (int, error) {
	return r.sources[r.current].ReadChunk(pos, p, sums)
}

func (r *Replicated) ChunkStart(pos int64) int64 {
	return r.sources[r.current].ChunkStart(pos)
}

func (r *Replicated) SeekToNewSource(pos int64) (bool, error) {
	r.suspect[r.current] = true
	for i := 1; i < len(r.sources); i++ {
		n := (r.current + i) % len(r.sources)
		if !r.suspect[n] {
			logger.Warnf("switching replica %d -> %d at offset %d", r.current, n, pos)
			r.current = n
			return true, nil
		}
	}
	return false, nil
}

func (r *Replicated) Close() error {
	var err error
	for _, s := range r.sources {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// OpenReplicated opens a named stream replicated over several stores.
func OpenReplicated(stores []ObjectStore, name, algo string, chunkSize int, verify bool, retries int) (*stream.Reader, error) {
	sources := make([]stream.Source, len(stores))
	for i, st := range stores {
		sources[i] = NewObjectSource(st, name, chunkSize)
	}
	rep, err := NewReplicated(sources...)
	if err != nil {
		return nil, err
	}
	conf, err := chunkConfig(algo, chunkSize, verify, retries)
	if err != nil {
		return nil, err
	}
	return stream.NewReader(name, rep, conf)
}
