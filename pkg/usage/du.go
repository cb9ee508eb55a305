// pkg/usage/du.go

// Package usage tracks the disk consumption of a directory by polling
// the system du tool, and reports filesystem capacity.
package usage

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

var logger = utils.GetLogger("hfs")

// DU tracks how many bytes a directory holds, the way du -sk reports
// it. Between refreshes the value can be adjusted with Inc and Dec as
// writers add and drop data.
type DU struct {
	path     string
	interval time.Duration

	used int64

	sync.Mutex
	lastErr error
	stop    chan struct{}
	started bool
	stopped bool
}

// NewDU measures path once and returns the tracker. Call Start to keep
// refreshing every interval.
func NewDU(path string, interval time.Duration) (*DU, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	d := &DU{path: abs, interval: interval, stop: make(chan struct{})}
	if err = d.run(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DU) run() error {
	out, err := exec.Command("du", "-sk", d.path).Output()
	if err != nil {
		return errors.Wrapf(err, "du -sk %s", d.path)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	used, err := strconv.ParseInt(strings.Split(line, "\t")[0], 10, 64)
	if err != nil {
		return errors.Errorf("illegal du output %q", line)
	}
	atomic.StoreInt64(&d.used, used*1024)
	return nil
}

// Path returns the directory being tracked.
func (d *DU) Path() string { return d.path }

// Inc records value bytes written under the directory.
func (d *DU) Inc(value int64) { atomic.AddInt64(&d.used, value) }

// Dec records value bytes removed from the directory.
func (d *DU) Dec(value int64) { atomic.AddInt64(&d.used, -value) }

// GetUsed returns the tracked usage in bytes. Without a refresher
// running it measures on the spot; otherwise an error from the last
// background refresh is reported once.
func (d *DU) GetUsed() (int64, error) {
	d.Lock()
	started := d.started
	err := d.lastErr
	d.lastErr = nil
	d.Unlock()
	if !started {
		if err := d.run(); err != nil {
			return 0, err
		}
	} else if err != nil {
		return 0, err
	}
	return atomic.LoadInt64(&d.used), nil
}

// Start refreshes the usage every interval in the background until
// Shutdown. A nonpositive interval keeps measuring on demand instead.
func (d *DU) Start() {
	d.Lock()
	defer d.Unlock()
	if d.interval <= 0 || d.started {
		return
	}
	d.started = true
	go d.refresh()
}

func (d *DU) refresh() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if err := d.run(); err != nil {
				d.Lock()
				d.lastErr = err
				d.Unlock()
				logger.Warnf("could not get disk usage information: %s", err)
			}
		}
	}
}

// Shutdown stops the background refresher for good; the last measured
// value stays readable. Safe to call twice.
func (d *DU) Shutdown() {
	d.Lock()
	defer d.Unlock()
	if d.started && !d.stopped {
		d.stopped = true
		close(d.stop)
	}
}

func (d *DU) String() string {
	return fmt.Sprintf("du -sk %s\n%d\t%s", d.path, atomic.LoadInt64(&d.used), d.path)
}
