// pkg/stream/errors.go

package stream

import (
	"errors"
	"fmt"
)

var errClosed = errors.New("stream already closed")

// ChecksumError reports a mismatch between a stored checksum and the
// one computed from the data. Off is the absolute offset of the first
// byte of the failing chunk.
type ChecksumError struct {
	Name string
	Off  int64
	Want uint32
	Got  uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum error: %s at %d exp: %d got: %d", e.Name, e.Off, e.Want, e.Got)
}

// IsChecksumError reports whether err is a checksum mismatch.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}
