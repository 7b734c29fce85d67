// Command mknimg creates, checks, and unpacks nImage containers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/nimage-project/nimage/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "mknimg",
		Usage: "work with nImage firmware containers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			createCmd(),
			checkCmd(),
			extractCmd(),
			hashCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func logFromCmd(cmd *cli.Command) logger.Logger {
	return logger.Text(os.Stderr, logger.ParseLevel(cmd.String("log-level")))
}
