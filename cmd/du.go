// cmd/du.go

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/shell"
	"github.com/neveralso/Diving-Into-HFS/pkg/usage"
)

func byteDesc(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	var i int
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d %s", n, units[0])
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}

func du(ctx *cli.Context) error {
	setLoggerLevel(ctx)
	format := shell.New("du", 0, 64, "h", "f")
	params, err := format.Parse(ctx.Args().Slice())
	if err != nil {
		logger.Fatalf("%s", err)
	}
	if len(params) == 0 {
		params = []string{"."}
	}
	for _, p := range params {
		d, err := usage.NewDU(p, 0)
		if err != nil {
			logger.Fatalf("du %s: %s", p, err)
		}
		used, err := d.GetUsed()
		if err != nil {
			logger.Fatalf("du %s: %s", p, err)
		}
		if format.Opt("h") {
			fmt.Printf("%s\t%s\n", byteDesc(used), d.Path())
		} else {
			fmt.Printf("%d\t%s\n", used, d.Path())
		}
		if format.Opt("f") {
			df, err := usage.NewDiskFree(p)
			if err != nil {
				logger.Fatalf("statfs %s: %s", p, err)
			}
			if format.Opt("h") {
				fmt.Printf("filesystem: %s total, %s available\n", byteDesc(int64(df.Total)), byteDesc(int64(df.Available)))
			} else {
				fmt.Printf("filesystem: %d total, %d available\n", df.Total, df.Available)
			}
		}
	}
	return nil
}

func duFlags() *cli.Command {
	return &cli.Command{
		Name:            "du",
		Usage:           "show disk usage of directories",
		ArgsUsage:       "[-h] [-f] [PATH ...]",
		Action:          du,
		SkipFlagParsing: true,
	}
}
