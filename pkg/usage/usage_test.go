// pkg/usage/usage_test.go

package usage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDU(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), bytes.Repeat([]byte{1}, 64<<10), 0644))

	d, err := NewDU(dir, time.Hour)
	require.NoError(t, err)
	d.Start()
	defer d.Shutdown()

	used, err := d.GetUsed()
	require.NoError(t, err)
	require.GreaterOrEqual(t, used, int64(64<<10))

	// adjustments ride on top of the last measurement
	d.Inc(4096)
	bumped, err := d.GetUsed()
	require.NoError(t, err)
	require.Equal(t, used+4096, bumped)
	d.Dec(4096)
	back, err := d.GetUsed()
	require.NoError(t, err)
	require.Equal(t, used, back)

	require.Contains(t, d.String(), "du -sk")
	d.Shutdown()
	d.Shutdown()
}

func TestDURefresh(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDU(dir, 10*time.Millisecond)
	require.NoError(t, err)
	d.Start()
	defer d.Shutdown()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "grow"), bytes.Repeat([]byte{2}, 128<<10), 0644))
	require.Eventually(t, func() bool {
		used, err := d.GetUsed()
		return err == nil && used >= 128<<10
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDUMissingDir(t *testing.T) {
	_, err := NewDU(filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
}

func TestDiskFree(t *testing.T) {
	df, err := NewDiskFree("/")
	require.NoError(t, err)
	require.Greater(t, df.Total, uint64(0))
	require.GreaterOrEqual(t, df.Free, df.Available)
	require.LessOrEqual(t, df.Free, df.Total)

	_, err = NewDiskFree("/definitely/not/here")
	require.Error(t, err)
}
