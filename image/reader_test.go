package image

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/section"
)

// buildTestImage builds a small container with one uncompressed and one
// compressed segment, sized to force alignment padding between them.
func buildTestImage(t *testing.T) []byte {
	t.Helper()

	builder, err := NewBuilder(WithImageName("reader-test"))
	require.NoError(t, err)
	require.NoError(t, builder.AddSegment(format.RoleKernel, random(101, 11), SegmentOptions{}))
	require.NoError(t, builder.AddSegment(format.RoleConfig, repetitive(257), SegmentOptions{
		Compression: format.CompressionZstd,
	}))

	data, err := builder.Build()
	require.NoError(t, err)

	return data
}

func TestOpen_Truncated(t *testing.T) {
	data := buildTestImage(t)

	t.Run("shorter than header", func(t *testing.T) {
		_, err := Open(data[:section.HeaderSize-1])
		require.ErrorIs(t, err, errs.ErrImageTruncated)
	})

	t.Run("table cut off", func(t *testing.T) {
		_, err := Open(data[:section.HeaderSize+section.EntrySize/2])
		require.ErrorIs(t, err, errs.ErrImageTruncated)
	})

	t.Run("payload cut off", func(t *testing.T) {
		_, err := Open(data[:len(data)-1])
		require.ErrorIs(t, err, errs.ErrImageTruncated)
	})
}

func TestOpen_TrailingBytes(t *testing.T) {
	data := buildTestImage(t)
	padded := append(append([]byte(nil), data...), 0xDE, 0xAD)

	_, err := Open(padded)
	require.ErrorIs(t, err, errs.ErrImageSizeMismatch)

	reader, err := Open(padded, Relaxed())
	require.NoError(t, err)
	require.True(t, reader.FullyVerified())
}

func TestOpen_BadMagic(t *testing.T) {
	data := buildTestImage(t)
	data[0] ^= 0xFF

	_, err := Open(data)
	require.ErrorIs(t, err, errs.ErrInvalidMagicNumber)
}

func TestOpen_BadVersion(t *testing.T) {
	data := buildTestImage(t)
	data[4] = section.VersionMajor + 1

	_, err := Open(data)
	require.ErrorIs(t, err, errs.ErrUnsupportedVersion)
}

func TestOpen_HeaderChecksum(t *testing.T) {
	data := buildTestImage(t)
	// Flip a bit inside the image name; only the header checksum covers it.
	data[30] ^= 0x01

	_, err := Open(data)
	require.ErrorIs(t, err, errs.ErrHeaderChecksum)
}

func TestOpen_StrictSegmentCorruption(t *testing.T) {
	data := buildTestImage(t)
	reader, err := Open(data)
	require.NoError(t, err)

	entry := reader.Entries()[1]
	corrupt := append([]byte(nil), data...)
	corrupt[entry.Offset] ^= 0x01

	_, err = Open(corrupt)
	require.Error(t, err)

	var verr *errs.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, format.RoleConfig, verr.Role)
	require.Equal(t, entry.Checksum, verr.Expected)
	require.NotEqual(t, verr.Expected, verr.Actual)
}

func TestOpen_ReportPartialExtraction(t *testing.T) {
	data := buildTestImage(t)
	clean, err := Open(data)
	require.NoError(t, err)

	kernelEntry := clean.Entries()[0]
	configEntry := clean.Entries()[1]

	// Corrupt only the config segment.
	corrupt := append([]byte(nil), data...)
	corrupt[configEntry.Offset+3] ^= 0x80

	reader, err := Open(corrupt, Report())
	require.NoError(t, err)
	require.False(t, reader.FullyVerified())
	require.Len(t, reader.Mismatches(), 1)
	require.Equal(t, format.RoleConfig, reader.Mismatches()[0].Role)

	// The intact segment stays extractable.
	kernel, err := reader.Segment(format.RoleKernel)
	require.NoError(t, err)
	require.Equal(t, kernelEntry.RawLength, uint64(len(kernel)))

	// The corrupt one reports its mismatch.
	_, err = reader.Segment(format.RoleConfig)
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrSegmentCorrupt)
}

func TestOpen_BitFlipSensitivity(t *testing.T) {
	// Flipping any single bit anywhere in the container must fail strict
	// verification; nothing may pass silently. Header and table flips are
	// caught by the header checksum (or parse), payload flips by exactly
	// one segment checksum, padding flips by the zero-padding check.
	data := buildTestImage(t)

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), data...)
			mutated[i] ^= 1 << bit

			_, err := Open(mutated)
			require.Error(t, err, "bit %d of byte %d flipped silently", bit, i)
		}
	}
}

func TestOpen_ReportCorruptionIsolated(t *testing.T) {
	// A payload bit flip in report mode must implicate exactly one segment.
	data := buildTestImage(t)
	clean, err := Open(data)
	require.NoError(t, err)

	for idx, entry := range clean.Entries() {
		mutated := append([]byte(nil), data...)
		mutated[entry.Offset+entry.StoredLength/2] ^= 0x10

		reader, err := Open(mutated, Report())
		require.NoError(t, err)
		require.Len(t, reader.Mismatches(), 1, "segment %d corruption not isolated", idx)
		require.Equal(t, entry.Role, reader.Mismatches()[0].Role)
	}
}

func TestOpen_PaddingMustBeZero(t *testing.T) {
	data := buildTestImage(t)
	reader, err := Open(data)
	require.NoError(t, err)

	first := reader.Entries()[0]
	second := reader.Entries()[1]
	require.Greater(t, second.Offset, first.End(), "test image should have padding")

	corrupt := append([]byte(nil), data...)
	corrupt[first.End()] = 0xAA

	_, err = Open(corrupt)
	require.ErrorIs(t, err, errs.ErrPaddingNotZero)

	// Structural, so report mode rejects it too.
	_, err = Open(corrupt, Report())
	require.ErrorIs(t, err, errs.ErrPaddingNotZero)
}

func TestReader_EmptyStoredCompressedSegment(t *testing.T) {
	// A crafted entry can claim a compressed segment with zero stored bytes
	// and a non-zero raw length. The stored-bytes checksum (of nothing)
	// matches, so strict Open passes; extraction must still refuse to hand
	// back an empty payload where the table promised data.
	entry := section.SegmentEntry{
		Role:         format.RoleConfig,
		Compression:  format.CompressionZstd,
		Offset:       section.PayloadStart(1),
		StoredLength: 0,
		RawLength:    5,
		Checksum:     checksum.Sum64(nil),
	}
	header := section.NewHeader("hollow")
	header.SegmentCount = 1
	header.TotalImageSize = section.PayloadStart(1)

	data := make([]byte, header.TotalImageSize)
	copy(data, header.Bytes())
	copy(data[section.HeaderSize:], entry.Bytes())
	header.HeaderChecksum = checksum.Sum64(data)
	copy(data, header.Bytes())

	reader, err := Open(data)
	require.NoError(t, err)

	_, err = reader.Segment(format.RoleConfig)
	require.Error(t, err)

	var derr *errs.DecompressError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, format.RoleConfig, derr.Role)
}

func TestReader_SegmentNotFound(t *testing.T) {
	reader, err := Open(buildTestImage(t))
	require.NoError(t, err)

	_, err = reader.Segment(format.RoleRootfs)
	require.ErrorIs(t, err, errs.ErrSegmentNotFound)

	_, err = reader.SegmentAt(-1)
	require.ErrorIs(t, err, errs.ErrSegmentNotFound)

	_, err = reader.SegmentAt(99)
	require.ErrorIs(t, err, errs.ErrSegmentNotFound)
}

func TestReader_DoesNotMutateSource(t *testing.T) {
	data := buildTestImage(t)
	snapshot := append([]byte(nil), data...)

	reader, err := Open(data)
	require.NoError(t, err)

	_, err = reader.Segment(format.RoleKernel)
	require.NoError(t, err)
	_, err = reader.Segment(format.RoleConfig)
	require.NoError(t, err)

	require.True(t, bytes.Equal(snapshot, data))
}

func TestContainer_ValidateStructure(t *testing.T) {
	t.Run("count mismatch", func(t *testing.T) {
		c := &Container{
			Header:   section.NewHeader("x"),
			Segments: []section.SegmentEntry{{}},
		}
		c.Header.SegmentCount = 2

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrImageSizeMismatch)
	})

	t.Run("overlapping segments", func(t *testing.T) {
		header := section.NewHeader("x")
		header.SegmentCount = 2
		header.TotalImageSize = section.PayloadStart(2) + 30

		c := &Container{
			Header: header,
			Segments: []section.SegmentEntry{
				{
					Role: format.RoleKernel, Compression: format.CompressionNone,
					Offset: section.PayloadStart(2), StoredLength: 20, RawLength: 20,
				},
				{
					Role: format.RoleConfig, Compression: format.CompressionNone,
					Offset: section.PayloadStart(2) + 12, StoredLength: 20, RawLength: 20,
				},
			},
		}

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrSegmentOverlap)
	})

	t.Run("segment past total size", func(t *testing.T) {
		header := section.NewHeader("x")
		header.SegmentCount = 1
		header.TotalImageSize = section.PayloadStart(1) + 10

		c := &Container{
			Header: header,
			Segments: []section.SegmentEntry{
				{
					Role: format.RoleKernel, Compression: format.CompressionNone,
					Offset: section.PayloadStart(1), StoredLength: 20, RawLength: 20,
				},
			},
		}

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrSegmentOutOfBounds)
	})

	t.Run("total size past last segment", func(t *testing.T) {
		header := section.NewHeader("x")
		header.SegmentCount = 1
		header.TotalImageSize = section.PayloadStart(1) + 100

		c := &Container{
			Header: header,
			Segments: []section.SegmentEntry{
				{
					Role: format.RoleKernel, Compression: format.CompressionNone,
					Offset: section.PayloadStart(1), StoredLength: 20, RawLength: 20,
				},
			},
		}

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrImageSizeMismatch)
	})

	t.Run("raw length exceeds source bound", func(t *testing.T) {
		header := section.NewHeader("x")
		header.SegmentCount = 1
		header.TotalImageSize = section.PayloadStart(1) + 20

		c := &Container{
			Header: header,
			Segments: []section.SegmentEntry{
				{
					Role: format.RoleRootfs, Compression: format.CompressionZstd,
					Offset: section.PayloadStart(1), StoredLength: 20,
					RawLength: MaxSourceSize + 1,
				},
			},
		}

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrSourceTooLarge)
	})

	t.Run("duplicate unique role", func(t *testing.T) {
		header := section.NewHeader("x")
		header.SegmentCount = 2
		header.TotalImageSize = section.PayloadStart(2) + 8

		c := &Container{
			Header: header,
			Segments: []section.SegmentEntry{
				{
					Role: format.RoleKernel, Compression: format.CompressionNone,
					Offset: section.PayloadStart(2), StoredLength: 4, RawLength: 4,
				},
				{
					Role: format.RoleKernel, Compression: format.CompressionNone,
					Offset: section.PayloadStart(2) + 4, StoredLength: 4, RawLength: 4,
				},
			},
		}

		err := c.ValidateStructure()
		require.ErrorIs(t, err, errs.ErrDuplicateRole)
	})
}
