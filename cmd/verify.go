// cmd/verify.go

package main

import (
	crand "crypto/rand"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/urfave/cli/v2"
	"github.com/vbauerster/mpb/v8"
	"golang.org/x/sync/errgroup"

	"github.com/neveralso/Diving-Into-HFS/pkg/store"
	"github.com/neveralso/Diving-Into-HFS/pkg/stream"
	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
)

func drain(r io.Reader, bar *mpb.Bar) (int64, error) {
	buf := utils.Alloc(1 << 20)
	defer utils.Free(buf)
	var n int64
	for {
		m, err := r.Read(buf)
		if m > 0 {
			n += int64(m)
			bar.IncrBy(m)
		}
		if err != nil {
			if err == io.EOF {
				err = nil
			}
			return n, err
		}
	}
}

func writeRandom(create func(string) (io.WriteCloser, error), name string, size int64) error {
	w, err := create(name)
	if err != nil {
		return err
	}
	buf := utils.Alloc(256 << 10)
	defer utils.Free(buf)
	for remain := size; remain > 0; {
		n := int64(len(buf))
		if n > remain {
			n = remain
		}
		crand.Read(buf[:n])
		if _, err := w.Write(buf[:n]); err != nil {
			_ = w.Close()
			return err
		}
		remain -= n
	}
	return w.Close()
}

func verify(ctx *cli.Context) error {
	setLoggerLevel(ctx)
	if ctx.Args().Len() < 1 {
		logger.Fatalf("at least one PATH is needed")
	}
	retries := ctx.Int("retries")
	checkSums := !ctx.Bool("no-verify")
	writeSize := ctx.Int64("write")

	var open func(name string) (*stream.Reader, error)
	var create func(name string) (io.WriteCloser, error)
	if ctx.Bool("object") {
		_, format := loadVolume(ctx)
		blob, err := createStorage(format)
		if err != nil {
			logger.Fatalf("object storage: %s", err)
		}
		if limit := ctx.Int64("bwlimit"); limit > 0 {
			bps := limit * 1e6 / 8
			blob = store.NewLimited(blob, bps, bps)
		}
		verifyOn := format.Verify && checkSums
		open = func(name string) (*stream.Reader, error) {
			return store.OpenObject(blob, name, format.Checksum, format.ChunkSize, verifyOn, retries)
		}
		create = func(name string) (io.WriteCloser, error) {
			w, err := store.CreateObject(blob, name, format.Checksum, format.ChunkSize)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
	} else {
		algo, chunkSize := ctx.String("checksum"), ctx.Int("chunk-size")
		open = func(p string) (*stream.Reader, error) {
			return store.OpenFile(p, checkSums, retries)
		}
		create = func(p string) (io.WriteCloser, error) {
			w, err := store.CreateFile(p, algo, chunkSize)
			if err != nil {
				return nil, err
			}
			return w, nil
		}
	}

	if writeSize > 0 {
		wProgress, wBar := utils.NewDynProgressBar("written streams", ctx.Bool("quiet"))
		wBar.SetTotal(int64(ctx.Args().Len()), false)
		for i := 0; i < ctx.Args().Len(); i++ {
			p := ctx.Args().Get(i)
			if err := writeRandom(create, p, writeSize); err != nil {
				logger.Fatalf("write %s: %s", p, err)
			}
			wBar.Increment()
		}
		wBar.SetTotal(int64(ctx.Args().Len()), true)
		wProgress.Wait()
	}

	progress, bar := utils.NewBytesProgressBar("verified bytes", ctx.Bool("quiet"))
	if writeSize > 0 {
		bar.SetTotal(writeSize*int64(ctx.Args().Len()), false)
	} else if !ctx.Bool("object") {
		var total int64
		for i := 0; i < ctx.Args().Len(); i++ {
			if fi, err := os.Stat(ctx.Args().Get(i)); err == nil {
				total += fi.Size()
			}
		}
		bar.SetTotal(total, false)
	}

	start := utils.Clock()
	var readBytes int64
	var g errgroup.Group
	g.SetLimit(ctx.Int("threads"))
	for i := 0; i < ctx.Args().Len(); i++ {
		p := ctx.Args().Get(i)
		g.Go(func() error {
			r, err := open(p)
			if err != nil {
				return fmt.Errorf("open %s: %s", p, err)
			}
			defer r.Close()
			n, err := drain(r, bar)
			atomic.AddInt64(&readBytes, n)
			if err != nil {
				if stream.IsChecksumError(err) {
					return fmt.Errorf("%s: %s", p, err)
				}
				return fmt.Errorf("read %s: %s", p, err)
			}
			logger.Debugf("%s: %d bytes OK", p, n)
			return nil
		})
	}
	err := g.Wait()
	bar.SetTotal(atomic.LoadInt64(&readBytes), true)
	progress.Wait()
	if err != nil {
		logger.Fatalf("%s", err)
	}

	used := utils.Clock() - start
	ru := utils.GetRusage()
	logger.Debugf("cpu usage: %.1fs user, %.1fs system, buffers in use: %d",
		ru.GetUtime(), ru.GetStime(), utils.AllocMemory())
	logger.Infof("Verified %d bytes in %.1f seconds", readBytes, used.Seconds())
	return nil
}

func verifyFlags() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "object",
			Usage: "treat arguments as stream names inside a formatted volume",
		},
		&cli.IntFlag{
			Name:    "threads",
			Aliases: []string{"p"},
			Value:   4,
			Usage:   "number of streams to verify concurrently",
		},
		&cli.IntFlag{
			Name:  "retries",
			Value: 3,
			Usage: "attempts for a chunk whose checksum does not match",
		},
		&cli.BoolFlag{
			Name:  "no-verify",
			Usage: "stream without checking, for timing comparisons",
		},
		&cli.Int64Flag{
			Name:  "write",
			Usage: "write a random stream of this many bytes first, then verify it",
		},
		&cli.Int64Flag{
			Name:  "bwlimit",
			Usage: "bandwidth limit for object storage in Mbps",
		},
		&cli.StringFlag{
			Name:  "checksum",
			Value: "crc32",
			Usage: "checksum algorithm for --write without --object",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Value: 512,
			Usage: "chunk size in bytes for --write without --object",
		},
	}
	return &cli.Command{
		Name:      "verify",
		Usage:     "read streams end to end and verify their checksums",
		ArgsUsage: "PATH ...",
		Action:    verify,
		Flags:     append(flags, storageFlags()...),
	}
}
