// cmd/status.go

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/store"
	"github.com/neveralso/Diving-Into-HFS/pkg/usage"
)

type sections struct {
	Setting *store.Format
	Disk    *usage.DiskFree `json:",omitempty"`
}

func printJson(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatalf("json: %s", err)
	}
	fmt.Println(string(output))
}

// storageFlags describe where to find a formatted volume; enough to
// read meta/format.json back, the rest comes from the saved format.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage",
			Value: "file",
			Usage: "object storage type (e.g. file, redis, bolt, sftp, mem)",
		},
		&cli.StringFlag{
			Name:  "bucket",
			Value: defaultBucket(),
			Usage: "the bucket URL the volume was formatted with",
		},
		&cli.StringFlag{
			Name:  "access-key",
			Usage: "access key for object storage (env ACCESS_KEY)",
		},
		&cli.StringFlag{
			Name:  "secret-key",
			Usage: "secret key for object storage (env SECRET_KEY)",
		},
		&cli.IntFlag{
			Name:  "shards",
			Value: 0,
			Usage: "the shard count the volume was formatted with",
		},
	}
}

func loadVolume(c *cli.Context) (store.ObjectStore, *store.Format) {
	seed := &store.Format{
		Storage:   c.String("storage"),
		Bucket:    c.String("bucket"),
		AccessKey: c.String("access-key"),
		SecretKey: c.String("secret-key"),
		Shards:    c.Int("shards"),
	}
	if seed.AccessKey == "" {
		seed.AccessKey = os.Getenv("ACCESS_KEY")
	}
	if seed.SecretKey == "" {
		seed.SecretKey = os.Getenv("SECRET_KEY")
	}
	base, err := baseStorage(seed)
	if err != nil {
		logger.Fatalf("object storage: %s", err)
	}
	format, err := store.LoadFormat(base)
	if err != nil {
		logger.Fatalf("load format: %s", err)
	}
	return base, format
}

func status(ctx *cli.Context) error {
	setLoggerLevel(ctx)
	_, format := loadVolume(ctx)

	s := &sections{Setting: format}
	if strings.ToLower(format.Storage) == "file" {
		df, err := usage.NewDiskFree(format.Bucket)
		if err != nil {
			logger.Warnf("statfs %s: %s", format.Bucket, err)
		} else {
			s.Disk = df
		}
	}

	format.RemoveSecret()
	printJson(s)
	return nil
}

func statusFlags() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show status of a volume",
		Action: status,
		Flags:  storageFlags(),
	}
}
