package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/image"
)

func extractCmd() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract one segment's decompressed payload",
		ArgsUsage: "IMAGE ROLE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "output file path (- for stdout)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "extract from a partially corrupt image (report mode)",
			},
		},
		Action: runExtract,
	}
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	log := logFromCmd(cmd)

	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected IMAGE and ROLE arguments")
	}
	path := cmd.Args().Get(0)

	role, ok := format.ParseRoleTag(cmd.Args().Get(1))
	if !ok {
		return fmt.Errorf("unrecognized segment role %q", cmd.Args().Get(1))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var readOpts []image.ReaderOption
	if cmd.Bool("force") {
		// Corrupt segments stay unreadable either way; force only allows
		// pulling intact segments out of an otherwise damaged image.
		readOpts = append(readOpts, image.Report())
	}

	reader, err := image.Open(data, readOpts...)
	if err != nil {
		return err
	}
	if n := len(reader.Mismatches()); n > 0 {
		log.Warn("image has corrupt segments", "count", n)
	}

	payload, err := reader.Segment(role)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	if output == "-" {
		_, err = os.Stdout.Write(payload)
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}

	// Hash while writing so the logged digest is of the bytes that actually
	// reached the file, not the in-memory payload.
	hw := checksum.NewWriter(f)
	if _, err := hw.Write(payload); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info("segment extracted", "role", role.String(), "path", output,
		"size", hw.Count(), "xxhash64", fmt.Sprintf("0x%016x", hw.Sum64()))

	return nil
}
