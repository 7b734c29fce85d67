package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/image"
)

// partSpec is one parsed FILE:ROLE[:COMP] argument.
type partSpec struct {
	path string
	role format.RoleTag
	opts image.SegmentOptions
}

// parsePart parses FILE:ROLE[:COMP][:load=ADDR][:entry=ADDR].
// A side effect of the syntax is that FILE cannot contain ':' characters.
func parsePart(arg string) (partSpec, error) {
	words := strings.Split(arg, ":")
	if words[0] == "" {
		return partSpec{}, fmt.Errorf("empty filename")
	}
	if len(words) < 2 {
		return partSpec{}, fmt.Errorf("missing segment role")
	}

	role, ok := format.ParseRoleTag(words[1])
	if !ok {
		return partSpec{}, fmt.Errorf("unrecognized segment role %q", words[1])
	}

	spec := partSpec{path: words[0], role: role}
	spec.opts.Compression = format.CompressionNone

	for _, word := range words[2:] {
		switch {
		case strings.HasPrefix(word, "load="):
			addr, err := strconv.ParseUint(strings.TrimPrefix(word, "load="), 0, 64)
			if err != nil {
				return partSpec{}, fmt.Errorf("bad load address %q", word)
			}
			spec.opts.LoadAddress = addr
		case strings.HasPrefix(word, "entry="):
			addr, err := strconv.ParseUint(strings.TrimPrefix(word, "entry="), 0, 64)
			if err != nil {
				return partSpec{}, fmt.Errorf("bad entry point %q", word)
			}
			spec.opts.EntryPoint = addr
		default:
			comp, ok := format.ParseCompressionType(word)
			if !ok {
				return partSpec{}, fmt.Errorf("unrecognized compression mode %q", word)
			}
			spec.opts.Compression = comp
		}
	}

	return spec, nil
}

func createCmd() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "build a container from payload files",
		ArgsUsage: "FILE:ROLE[:COMP] ...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "output image path",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "image name recorded in the header",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "compression worker count (0 = all CPUs)",
			},
		},
		Action: runCreate,
	}
}

func runCreate(ctx context.Context, cmd *cli.Command) error {
	log := logFromCmd(cmd)

	args := cmd.Args().Slice()
	if len(args) == 0 {
		return fmt.Errorf("no segments given")
	}

	specs := make([]partSpec, 0, len(args))
	for _, arg := range args {
		spec, err := parsePart(arg)
		if err != nil {
			return fmt.Errorf("invalid segment %q: %w", arg, err)
		}
		specs = append(specs, spec)
	}

	buildOpts := []image.BuilderOption{image.WithImageName(cmd.String("name"))}
	if n := cmd.Int("workers"); n > 0 {
		buildOpts = append(buildOpts, image.WithWorkerCount(int(n)))
	}

	builder, err := image.NewBuilder(buildOpts...)
	if err != nil {
		return err
	}

	for _, spec := range specs {
		f, err := os.Open(spec.path)
		if err != nil {
			return err
		}
		err = builder.AddSegmentReader(spec.role, f, spec.opts)
		f.Close()
		if err != nil {
			return err
		}
		log.Debug("added segment", "file", spec.path, "role", spec.role.String(),
			"compression", spec.opts.Compression.String())
	}

	output := cmd.String("output")
	if err := builder.BuildFile(output); err != nil {
		return err
	}
	log.Info("image created", "path", output, "segments", len(specs))

	return nil
}
