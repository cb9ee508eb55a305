// cmd/main.go

package main

import (
	"fmt"
	"os"

	"github.com/google/gops/agent"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/neveralso/Diving-Into-HFS/pkg/utils"
	"github.com/neveralso/Diving-Into-HFS/pkg/version"
)

var logger = utils.GetLogger("hfs")

func main() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print only the version",
	}
	app := &cli.App{
		Name:    "hfs",
		Usage:   "a checksum-verified stream store over pluggable object storage",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"debug", "v"},
				Usage:   "enable debug log",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "only warning and errors",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "enable trace log",
			},
			&cli.StringFlag{
				Name:  "log-output",
				Usage: "path of the log file (default: stderr)",
			},
			&cli.BoolFlag{
				Name:  "no-agent",
				Usage: "disable the gops agent",
			},
		},
		Commands: []*cli.Command{
			formatFlags(),
			statusFlags(),
			verifyFlags(),
			duFlags(),
			chmodFlags(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%s", err)
	}
}

func setLoggerLevel(c *cli.Context) {
	if c.Bool("trace") {
		utils.SetLogLevel(logrus.TraceLevel)
	} else if c.Bool("verbose") {
		utils.SetLogLevel(logrus.DebugLevel)
	} else if c.Bool("quiet") {
		utils.SetLogLevel(logrus.WarnLevel)
	}
	if o := c.String("log-output"); o != "" {
		utils.SetOutFile(o)
	}
	if !c.Bool("no-agent") {
		go func() {
			for port := 6070; port < 6100; port++ {
				_ = agent.Listen(agent.Options{Addr: fmt.Sprintf("127.0.0.1:%d", port)})
			}
		}()
	}
}
