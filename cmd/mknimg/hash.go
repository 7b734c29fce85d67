package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/nimage-project/nimage/checksum"
)

func hashCmd() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "print the xxHash64 of a file (or stdin)",
		ArgsUsage: "[FILE]",
		Action:    runHash,
	}
}

func runHash(ctx context.Context, cmd *cli.Command) error {
	var in io.Reader = os.Stdin
	name := "-"

	if cmd.Args().Len() > 1 {
		return fmt.Errorf("expected at most one file")
	}
	if cmd.Args().Len() == 1 {
		name = cmd.Args().First()
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	hasher := checksum.NewReader(in)
	if _, err := io.Copy(io.Discard, hasher); err != nil {
		return err
	}
	fmt.Printf("0x%016x  %s\n", hasher.Sum64(), name)

	return nil
}
