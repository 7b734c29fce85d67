// Command swdl flashes an nImage container onto target storage according to
// a YAML flash plan. Region order in the plan is write order; put
// boot-critical segments last so an interrupted flash leaves the device
// bootable.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nimage-project/nimage/flash"
	"github.com/nimage-project/nimage/image"
	"github.com/nimage-project/nimage/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "swdl",
		Usage: "write an nImage container to a storage device",
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
			flashCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func flashCmd() *cli.Command {
	return &cli.Command{
		Name:      "flash",
		Usage:     "verify an image and write its segments to planned device regions",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "plan",
				Aliases:  []string{"p"},
				Usage:    "YAML flash plan path",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "target device or partition path",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "attempts",
				Usage: "write attempts per segment",
				Value: flash.DefaultMaxAttempts,
			},
			&cli.DurationFlag{
				Name:  "backoff",
				Usage: "delay before the first retry (doubles per attempt)",
				Value: flash.DefaultBackoff,
			},
			&cli.BoolFlag{
				Name:  "no-read-back",
				Usage: "skip post-write read-back verification",
			},
		},
		Action: runFlash,
	}
}

func runFlash(ctx context.Context, cmd *cli.Command) error {
	log := logger.Text(os.Stderr, logger.ParseLevel(cmd.String("log-level")))

	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one image path")
	}
	imagePath := cmd.Args().First()

	plan, err := flash.LoadPlan(cmd.String("plan"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return err
	}

	// Strict verification, the only mode the writer accepts. Nothing is
	// written unless the whole container checks out.
	reader, err := image.Open(data)
	if err != nil {
		return fmt.Errorf("image failed verification, not flashing: %w", err)
	}
	log.Info("image verified", "path", imagePath, "name", reader.Name(),
		"segments", reader.SegmentCount())

	// O_SYNC keeps write completion tied to the media instead of the page
	// cache, so read-back verification reads what the device stored.
	dev, err := os.OpenFile(cmd.String("device"), os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return fmt.Errorf("opening device: %w", err)
	}
	defer dev.Close()

	writerOpts := []flash.WriterOption{
		flash.WithLogger(log),
		flash.WithMaxAttempts(int(cmd.Int("attempts"))),
		flash.WithBackoff(cmd.Duration("backoff")),
	}
	if cmd.Bool("no-read-back") {
		writerOpts = append(writerOpts, flash.WithoutReadBack())
	}

	writer, err := flash.NewWriter(dev, plan, writerOpts...)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := writer.WriteImage(ctx, reader); err != nil {
		// A failed write may leave mixed firmware on the device; that is
		// loud and unrecoverable without manual intervention.
		return fmt.Errorf("FLASH FAILED, device may be in a mixed state: %w", err)
	}
	log.Info("flash complete", "elapsed", time.Since(start).Round(time.Millisecond))

	return nil
}
