// cmd/chmod.go

package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/perm"
	"github.com/neveralso/Diving-Into-HFS/pkg/shell"
)

func chmod(ctx *cli.Context) error {
	setLoggerLevel(ctx)
	format := shell.New("chmod", 2, 64, "d")
	params, err := format.Parse(ctx.Args().Slice())
	if err != nil {
		logger.Fatalf("%s", err)
	}
	ch, err := perm.ParseChmod(params[0])
	if err != nil {
		logger.Fatalf("%s: %s", params[0], err)
	}
	isDir := format.Opt("d")
	for _, arg := range params[1:] {
		old, err := strconv.ParseUint(arg, 8, 16)
		if err != nil || old > 07777 {
			logger.Fatalf("invalid mode: %s", arg)
		}
		mode := ch.Apply(uint16(old), isDir)
		fmt.Printf("%04o\t%s\n", mode, perm.FromMode(mode))
	}
	return nil
}

func chmodFlags() *cli.Command {
	return &cli.Command{
		Name:            "chmod",
		Usage:           "apply a chmod mode expression to octal modes",
		ArgsUsage:       "[-d] MODE OCTAL ...",
		Action:          chmod,
		SkipFlagParsing: true,
	}
}
