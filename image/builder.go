package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/compress"
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/internal/options"
	"github.com/nimage-project/nimage/internal/pool"
	"github.com/nimage-project/nimage/section"
)

// MaxSourceSize bounds a single segment's raw payload. Firmware payloads a
// device can actually flash are far below this; anything larger is a caller
// mistake, not a real image.
const MaxSourceSize = 4 << 30 // 4GiB

// SegmentOptions configures one segment added to a Builder.
type SegmentOptions struct {
	// Compression selects the codec for this segment's stored bytes. The
	// zero value means no compression. If the compressed result would
	// expand beyond the builder's expansion margin, the segment falls back
	// to uncompressed storage and the table records CompressionNone.
	Compression format.CompressionType

	// LoadAddress and EntryPoint are recorded for loadable roles (kernel).
	// They must be zero for any other role.
	LoadAddress uint64
	EntryPoint  uint64
}

// Builder constructs an nImage container from named byte sources.
//
// Inputs are accumulated with AddSegment and fully buffered in memory;
// layout needs every size known before any offset is assigned. Build
// serializes the whole container in one pass. The Builder is not safe for
// concurrent use, but Build's internal compression workers never affect the
// output bytes: codecs are deterministic, so the same inputs and options
// produce the same container at any worker count.
type Builder struct {
	name    string
	workers int
	margin  float64
	inputs  []segmentInput
}

type segmentInput struct {
	role format.RoleTag
	data []byte
	opts SegmentOptions
}

// BuilderOption configures a Builder.
type BuilderOption = options.Option[*Builder]

// WithImageName sets the image name recorded in the header, up to
// section.MaxNameLen bytes.
func WithImageName(name string) BuilderOption {
	return options.New(func(b *Builder) error {
		if len(name) > section.MaxNameLen {
			return &errs.BuildError{Kind: errs.ErrNameTooLong,
				Err: fmt.Errorf("name is %d bytes, maximum %d", len(name), section.MaxNameLen)}
		}
		b.name = name

		return nil
	})
}

// WithWorkerCount bounds the number of concurrent compression workers used
// by Build. Defaults to the available parallelism. Worker count never
// changes the output bytes.
func WithWorkerCount(n int) BuilderOption {
	return options.New(func(b *Builder) error {
		if n < 1 {
			return fmt.Errorf("worker count must be at least 1, got %d", n)
		}
		b.workers = n

		return nil
	})
}

// WithExpansionMargin sets the fraction by which a compressed segment may
// exceed its raw size before the builder falls back to uncompressed
// storage. The default margin is 0: any expansion at all falls back.
func WithExpansionMargin(margin float64) BuilderOption {
	return options.New(func(b *Builder) error {
		if margin < 0 {
			return fmt.Errorf("expansion margin must not be negative, got %v", margin)
		}
		b.margin = margin

		return nil
	})
}

// NewBuilder creates a Builder with the given options.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	b := &Builder{
		workers: runtime.GOMAXPROCS(0),
	}
	if err := options.Apply(b, opts...); err != nil {
		return nil, err
	}

	return b, nil
}

// AddSegment adds one named payload to the container under construction.
// The data slice is retained until Build; callers must not mutate it.
//
// Roles other than format.RoleOther may be added at most once. The segment
// count is bounded by section.MaxSegments.
func (b *Builder) AddSegment(role format.RoleTag, data []byte, opts SegmentOptions) error {
	if !role.IsValid() {
		return &errs.BuildError{Kind: errs.ErrInvalidRoleTag, Role: role}
	}
	if len(b.inputs) >= section.MaxSegments {
		return &errs.BuildError{Kind: errs.ErrTooManySegments, Role: role,
			Err: fmt.Errorf("container is limited to %d segments", section.MaxSegments)}
	}
	if !role.Repeatable() {
		for _, in := range b.inputs {
			if in.role == role {
				return &errs.BuildError{Kind: errs.ErrDuplicateRole, Role: role}
			}
		}
	}
	if uint64(len(data)) > MaxSourceSize {
		return &errs.BuildError{Kind: errs.ErrSourceTooLarge, Role: role,
			Err: fmt.Errorf("source is %d bytes, maximum %d", len(data), uint64(MaxSourceSize))}
	}
	if opts.Compression == 0 {
		opts.Compression = format.CompressionNone
	}
	if !opts.Compression.IsValid() {
		return &errs.BuildError{Kind: errs.ErrInvalidCompression, Role: role,
			Err: fmt.Errorf("unknown compression type 0x%02x", uint8(opts.Compression))}
	}
	if !role.Loadable() && (opts.LoadAddress != 0 || opts.EntryPoint != 0) {
		return &errs.BuildError{Kind: errs.ErrLoadFieldsNotZero, Role: role}
	}

	b.inputs = append(b.inputs, segmentInput{role: role, data: data, opts: opts})

	return nil
}

// AddSegmentReader reads r to EOF and adds the result as a segment.
// The source must be fully readable; layout needs its size.
func (b *Builder) AddSegmentReader(role format.RoleTag, r io.Reader, opts SegmentOptions) error {
	buf := pool.GetSegmentBuffer()
	defer pool.PutSegmentBuffer(buf)

	if _, err := io.Copy(buf, io.LimitReader(r, MaxSourceSize+1)); err != nil {
		return &errs.BuildError{Kind: errs.ErrCompressionFailure, Role: role,
			Err: fmt.Errorf("reading source: %w", err)}
	}
	if buf.Len() > MaxSourceSize {
		return &errs.BuildError{Kind: errs.ErrSourceTooLarge, Role: role,
			Err: fmt.Errorf("source exceeds %d bytes", uint64(MaxSourceSize))}
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())

	return b.AddSegment(role, data, opts)
}

// storedSegment is the result of compressing one input.
type storedSegment struct {
	stored      []byte
	compression format.CompressionType
	err         error
}

// Build lays out, checksums, and serializes the container, returning the
// complete byte stream. Build may be called more than once and always
// produces identical bytes for the same accumulated inputs.
func (b *Builder) Build() ([]byte, error) {
	if len(b.inputs) == 0 {
		return nil, &errs.BuildError{Kind: errs.ErrNoSegments}
	}

	stored, err := b.compressAll()
	if err != nil {
		return nil, err
	}

	// Layout: header, table, then payloads packed on alignment boundaries.
	entries := make([]section.SegmentEntry, len(b.inputs))
	offset := section.PayloadStart(len(b.inputs))
	for i, in := range b.inputs {
		entries[i] = section.SegmentEntry{
			Role:         in.role,
			Compression:  stored[i].compression,
			Offset:       offset,
			StoredLength: uint64(len(stored[i].stored)),
			RawLength:    uint64(len(in.data)),
			Checksum:     checksum.Sum64(stored[i].stored),
			LoadAddress:  in.opts.LoadAddress,
			EntryPoint:   in.opts.EntryPoint,
		}
		offset = section.AlignUp(offset + uint64(len(stored[i].stored)))
	}
	totalSize := entries[len(entries)-1].End()

	header := section.NewHeader(b.name)
	header.SegmentCount = uint16(len(entries))
	header.TotalImageSize = totalSize

	// Serialize header and table with a zero checksum field, hash, then
	// patch the real checksum in.
	out := make([]byte, totalSize)
	copy(out, header.Bytes())
	for i := range entries {
		copy(out[section.HeaderSize+section.TableSize(i):], entries[i].Bytes())
	}
	header.HeaderChecksum = checksum.Sum64(out[:section.PayloadStart(len(entries))])
	copy(out, header.Bytes())

	for i := range entries {
		copy(out[entries[i].Offset:], stored[i].stored)
	}

	return out, nil
}

// BuildFile builds the container and writes it to path. On any failure no
// partial file is left behind: output goes to a temp file in the same
// directory and is renamed into place only on success.
func (b *Builder) BuildFile(path string) error {
	data, err := b.Build()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("renaming output: %w", err)
	}

	return nil
}

// compressAll produces stored bytes for every input, fanning segments out
// to a bounded worker pool. Parallelism is across segments only; each
// codec call is deterministic, so the results do not depend on scheduling.
func (b *Builder) compressAll() ([]storedSegment, error) {
	results := make([]storedSegment, len(b.inputs))

	workers := b.workers
	if workers > len(b.inputs) {
		workers = len(b.inputs)
	}

	var wg sync.WaitGroup
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = b.compressOne(b.inputs[i])
			}
		}()
	}

	for i := range b.inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if results[i].err != nil {
			return nil, &errs.BuildError{Kind: errs.ErrCompressionFailure,
				Role: b.inputs[i].role, Err: results[i].err}
		}
	}

	return results, nil
}

// compressOne compresses a single input, falling back to uncompressed
// storage when compression expands the data beyond the configured margin.
// The fallback is recorded in the result, never silently accepted.
func (b *Builder) compressOne(in segmentInput) storedSegment {
	if in.opts.Compression == format.CompressionNone {
		return storedSegment{stored: in.data, compression: format.CompressionNone}
	}

	codec, err := compress.GetCodec(in.opts.Compression)
	if err != nil {
		return storedSegment{err: err}
	}

	compressed, err := codec.Compress(in.data)
	if err != nil {
		return storedSegment{err: err}
	}

	// An empty result for non-empty input is the codec saying
	// "incompressible" (LZ4 block convention); fall back like expansion.
	if len(compressed) == 0 && len(in.data) > 0 {
		return storedSegment{stored: in.data, compression: format.CompressionNone}
	}

	limit := float64(len(in.data)) * (1 + b.margin)
	if float64(len(compressed)) > limit {
		return storedSegment{stored: in.data, compression: format.CompressionNone}
	}

	return storedSegment{stored: compressed, compression: in.opts.Compression}
}
