// pkg/usage/df.go

package usage

import "golang.org/x/sys/unix"

// DiskFree describes the capacity of the filesystem a path lives on.
type DiskFree struct {
	Total     uint64
	Free      uint64
	Available uint64
	Files     uint64
	FreeFiles uint64
}

// NewDiskFree reports the capacity of the filesystem holding path.
// Available is what a non-root user can still write.
func NewDiskFree(path string) (*DiskFree, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	bsize := uint64(st.Bsize)
	return &DiskFree{
		Total:     st.Blocks * bsize,
		Free:      st.Bfree * bsize,
		Available: st.Bavail * bsize,
		Files:     st.Files,
		FreeFiles: st.Ffree,
	}, nil
}
