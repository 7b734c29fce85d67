package image

import (
	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/compress"
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/internal/options"
	"github.com/nimage-project/nimage/section"
)

// VerifyMode selects how Open reacts to segment checksum mismatches.
type VerifyMode uint8

const (
	// VerifyStrict fails Open on the first mismatch. This is the default
	// and the only mode the flashing path accepts.
	VerifyStrict VerifyMode = iota
	// VerifyReport collects every mismatch and keeps intact segments
	// extractable. Opt-in, for inspecting damaged images.
	VerifyReport
)

type readerConfig struct {
	mode    VerifyMode
	relaxed bool
}

// ReaderOption configures Open.
type ReaderOption = options.Option[*readerConfig]

// Report switches verification to report mode: all segment checksum
// mismatches are collected (see Reader.Mismatches) and segments that did
// verify stay readable.
func Report() ReaderOption {
	return options.NoError(func(c *readerConfig) {
		c.mode = VerifyReport
	})
}

// Relaxed tolerates trailing bytes after the end of the container. Some
// transports pad images to a block size; the trailing bytes are ignored,
// never read.
func Relaxed() ReaderOption {
	return options.NoError(func(c *readerConfig) {
		c.relaxed = true
	})
}

// Reader is a verified, read-only view over a serialized container.
//
// Open validates structure and checksums up front; payload access via
// Segment decompresses lazily and only for segments whose stored-bytes
// checksum was confirmed. The Reader never mutates the source bytes.
type Reader struct {
	data      []byte
	container Container
	mode      VerifyMode

	verified   []bool
	mismatches []*errs.VerifyError
}

// Open parses and verifies a serialized container.
//
// Validation order: magic and version, header checksum (over header plus
// segment table with the checksum field zeroed), segment table parse,
// structural invariants, then every segment's stored-bytes checksum. In
// strict mode the first mismatch fails Open with a *errs.VerifyError; in
// report mode Open succeeds if the structure is sound and mismatches are
// reported per segment.
func Open(data []byte, opts ...ReaderOption) (*Reader, error) {
	cfg := &readerConfig{}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	if len(data) < section.HeaderSize {
		return nil, errs.Formatf(errs.ErrImageTruncated,
			"%d bytes is shorter than the %d byte header", len(data), section.HeaderSize)
	}

	header := &section.Header{}
	if err := header.Parse(data[:section.HeaderSize]); err != nil {
		return nil, err
	}

	tableEnd := section.PayloadStart(int(header.SegmentCount))
	if uint64(len(data)) < tableEnd {
		return nil, errs.Formatf(errs.ErrImageTruncated,
			"%d bytes cannot hold a %d entry segment table", len(data), header.SegmentCount)
	}
	if uint64(len(data)) < header.TotalImageSize {
		return nil, errs.Formatf(errs.ErrImageTruncated,
			"have %d bytes, header declares %d", len(data), header.TotalImageSize)
	}
	if uint64(len(data)) > header.TotalImageSize && !cfg.relaxed {
		return nil, errs.Formatf(errs.ErrImageSizeMismatch,
			"%d trailing bytes after declared image size %d", uint64(len(data))-header.TotalImageSize, header.TotalImageSize)
	}

	// The header checksum covers header plus table with its field zeroed.
	prefix := make([]byte, tableEnd)
	copy(prefix, data[:tableEnd])
	section.ZeroChecksumField(prefix)
	if actual := checksum.Sum64(prefix); actual != header.HeaderChecksum {
		return nil, errs.Formatf(errs.ErrHeaderChecksum,
			"expected 0x%016x, actual 0x%016x", header.HeaderChecksum, actual)
	}

	segments := make([]section.SegmentEntry, header.SegmentCount)
	for i := range segments {
		start := section.HeaderSize + section.TableSize(i)
		if err := segments[i].Parse(data[start : start+section.EntrySize]); err != nil {
			return nil, err
		}
	}

	r := &Reader{
		data:      data,
		container: Container{Header: header, Segments: segments},
		mode:      cfg.mode,
		verified:  make([]bool, len(segments)),
	}
	if err := r.container.ValidateStructure(); err != nil {
		return nil, err
	}

	// Alignment padding between payloads is not covered by any segment
	// checksum, so it gets its own check: every padding byte must be zero.
	// This keeps the corruption guarantee airtight; no byte in a container
	// can flip without some validation noticing.
	if err := r.checkPadding(); err != nil {
		return nil, err
	}

	if err := r.verifySegments(); err != nil {
		return nil, err
	}

	return r, nil
}

// checkPadding verifies that the bytes between consecutive payloads are
// zero. Structural corruption, fatal in every mode.
func (r *Reader) checkPadding() error {
	end := section.PayloadStart(len(r.container.Segments))
	for i := range r.container.Segments {
		entry := &r.container.Segments[i]
		for off := end; off < entry.Offset; off++ {
			if r.data[off] != 0 {
				return errs.Formatf(errs.ErrPaddingNotZero,
					"byte 0x%02x at offset %d", r.data[off], off)
			}
		}
		end = entry.End()
	}

	return nil
}

// verifySegments recomputes every segment checksum over the stored bytes.
// Strict mode aborts on the first mismatch; report mode records each
// mismatch and keeps going so the caller sees the full list of corrupt
// segments.
func (r *Reader) verifySegments() error {
	for i := range r.container.Segments {
		entry := &r.container.Segments[i]
		stored := r.storedBytes(entry)
		actual := checksum.Sum64(stored)
		if actual == entry.Checksum {
			r.verified[i] = true
			continue
		}

		verr := &errs.VerifyError{
			Role:     entry.Role,
			Offset:   entry.Offset,
			Expected: entry.Checksum,
			Actual:   actual,
		}
		if r.mode == VerifyStrict {
			return verr
		}
		r.mismatches = append(r.mismatches, verr)
	}

	return nil
}

func (r *Reader) storedBytes(entry *section.SegmentEntry) []byte {
	return r.data[entry.Offset:entry.End()]
}

// Name returns the image name from the header.
func (r *Reader) Name() string {
	return r.container.Header.Name
}

// Version returns the container's format version.
func (r *Reader) Version() (major, minor uint8) {
	return r.container.Header.VersionMajor, r.container.Header.VersionMinor
}

// TotalImageSize returns the declared byte length of the container.
func (r *Reader) TotalImageSize() uint64 {
	return r.container.Header.TotalImageSize
}

// Mode returns the verification mode the reader was opened with.
func (r *Reader) Mode() VerifyMode {
	return r.mode
}

// SegmentCount returns the number of segments in the container.
func (r *Reader) SegmentCount() int {
	return len(r.container.Segments)
}

// Entries returns a copy of the segment table.
func (r *Reader) Entries() []section.SegmentEntry {
	entries := make([]section.SegmentEntry, len(r.container.Segments))
	copy(entries, r.container.Segments)

	return entries
}

// Mismatches returns the verification failures collected in report mode.
// Empty for a strict-mode reader (strict Open fails instead).
func (r *Reader) Mismatches() []*errs.VerifyError {
	return r.mismatches
}

// FullyVerified reports whether every segment passed checksum verification.
func (r *Reader) FullyVerified() bool {
	return len(r.mismatches) == 0
}

// Segment returns the decompressed payload of the first segment with the
// given role. See SegmentAt.
func (r *Reader) Segment(role format.RoleTag) ([]byte, error) {
	idx := r.container.FindRole(role)
	if idx < 0 {
		return nil, errs.Formatf(errs.ErrSegmentNotFound, "no %s segment in container", role)
	}

	return r.SegmentAt(idx)
}

// SegmentAt returns the decompressed payload of segment idx. Decompression
// happens on demand and only for segments whose checksum was confirmed; a
// corrupt segment in report mode returns its recorded VerifyError. A
// decompression failure despite a matching checksum surfaces as
// *errs.DecompressError.
func (r *Reader) SegmentAt(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(r.container.Segments) {
		return nil, errs.Formatf(errs.ErrSegmentNotFound, "segment index %d out of range", idx)
	}
	entry := &r.container.Segments[idx]

	if !r.verified[idx] {
		for _, m := range r.mismatches {
			if m.Role == entry.Role && m.Offset == entry.Offset {
				return nil, m
			}
		}

		return nil, errs.Formatf(errs.ErrSegmentCorrupt, "%s segment is not verified", entry.Role)
	}

	codec, err := compress.GetCodec(entry.Compression)
	if err != nil {
		return nil, errs.Formatf(errs.ErrInvalidCompression, "%s segment: %v", entry.Role, err)
	}

	raw, err := codec.Decompress(r.storedBytes(entry), int(entry.RawLength))
	if err != nil {
		return nil, &errs.DecompressError{Role: entry.Role, Kind: entry.Compression, Err: err}
	}

	return raw, nil
}

// Container returns the parsed container model (header plus segment table).
// The returned value shares no payload bytes and must be treated read-only.
func (r *Reader) Container() *Container {
	return &r.container
}
