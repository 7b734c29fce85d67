package image

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/section"
)

func repetitive(size int) []byte {
	pattern := []byte("vmlinuz-6.6.0-segment-data-")
	data := make([]byte, 0, size)
	for len(data) < size {
		data = append(data, pattern...)
	}

	return data[:size]
}

func random(size int, seed int64) []byte {
	rng := rand.New(rand.NewSource(seed))
	data := make([]byte, size)
	_, _ = rng.Read(data)

	return data
}

func TestBuilder_RoundTrip(t *testing.T) {
	kernel := repetitive(50000)
	dtb := random(3001, 1)
	rootfs := repetitive(200000)
	config := []byte(`{"bank":"a"}`)

	builder, err := NewBuilder(WithImageName("test-fw"))
	require.NoError(t, err)

	require.NoError(t, builder.AddSegment(format.RoleKernel, kernel, SegmentOptions{
		Compression: format.CompressionZstd,
		LoadAddress: 0x80000,
		EntryPoint:  0x80000,
	}))
	require.NoError(t, builder.AddSegment(format.RoleDeviceTree, dtb, SegmentOptions{}))
	require.NoError(t, builder.AddSegment(format.RoleRootfs, rootfs, SegmentOptions{
		Compression: format.CompressionLZ4,
	}))
	require.NoError(t, builder.AddSegment(format.RoleConfig, config, SegmentOptions{
		Compression: format.CompressionS2,
	}))

	data, err := builder.Build()
	require.NoError(t, err)

	reader, err := Open(data)
	require.NoError(t, err)
	require.Equal(t, "test-fw", reader.Name())
	require.Equal(t, 4, reader.SegmentCount())
	require.True(t, reader.FullyVerified())

	got, err := reader.Segment(format.RoleKernel)
	require.NoError(t, err)
	require.True(t, bytes.Equal(kernel, got))

	got, err = reader.Segment(format.RoleDeviceTree)
	require.NoError(t, err)
	require.True(t, bytes.Equal(dtb, got))

	got, err = reader.Segment(format.RoleRootfs)
	require.NoError(t, err)
	require.True(t, bytes.Equal(rootfs, got))

	got, err = reader.Segment(format.RoleConfig)
	require.NoError(t, err)
	require.True(t, bytes.Equal(config, got))

	entries := reader.Entries()
	require.Equal(t, uint64(0x80000), entries[0].LoadAddress)
	require.Equal(t, format.CompressionZstd, entries[0].Compression)
	require.Less(t, entries[0].StoredLength, entries[0].RawLength)
}

func TestBuilder_AddSegment_Errors(t *testing.T) {
	t.Run("duplicate role", func(t *testing.T) {
		builder, _ := NewBuilder()
		require.NoError(t, builder.AddSegment(format.RoleKernel, []byte{1}, SegmentOptions{}))

		err := builder.AddSegment(format.RoleKernel, []byte{2}, SegmentOptions{})
		require.Error(t, err)
		require.ErrorIs(t, err, errs.ErrDuplicateRole)
	})

	t.Run("other role is repeatable", func(t *testing.T) {
		builder, _ := NewBuilder()
		require.NoError(t, builder.AddSegment(format.RoleOther, []byte{1}, SegmentOptions{}))
		require.NoError(t, builder.AddSegment(format.RoleOther, []byte{2}, SegmentOptions{}))
	})

	t.Run("too many segments", func(t *testing.T) {
		builder, _ := NewBuilder()
		for i := 0; i < section.MaxSegments; i++ {
			require.NoError(t, builder.AddSegment(format.RoleOther, []byte{byte(i)}, SegmentOptions{}))
		}

		err := builder.AddSegment(format.RoleOther, []byte{0xFF}, SegmentOptions{})
		require.ErrorIs(t, err, errs.ErrTooManySegments)
	})

	t.Run("invalid role", func(t *testing.T) {
		builder, _ := NewBuilder()
		err := builder.AddSegment(format.RoleInvalid, []byte{1}, SegmentOptions{})
		require.ErrorIs(t, err, errs.ErrInvalidRoleTag)
	})

	t.Run("load fields on non-loadable role", func(t *testing.T) {
		builder, _ := NewBuilder()
		err := builder.AddSegment(format.RoleConfig, []byte{1}, SegmentOptions{LoadAddress: 4})
		require.ErrorIs(t, err, errs.ErrLoadFieldsNotZero)
	})

	t.Run("unknown compression", func(t *testing.T) {
		builder, _ := NewBuilder()
		err := builder.AddSegment(format.RoleConfig, []byte{1}, SegmentOptions{
			Compression: format.CompressionType(0x63),
		})
		require.ErrorIs(t, err, errs.ErrInvalidCompression)
	})

	t.Run("no segments", func(t *testing.T) {
		builder, _ := NewBuilder()
		_, err := builder.Build()
		require.ErrorIs(t, err, errs.ErrNoSegments)
	})
}

func TestBuilder_NameTooLong(t *testing.T) {
	name := string(repetitive(section.MaxNameLen + 1))
	_, err := NewBuilder(WithImageName(name))

	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrNameTooLong)
}

func TestBuilder_Idempotent(t *testing.T) {
	build := func(workers int) []byte {
		builder, err := NewBuilder(WithImageName("repro"), WithWorkerCount(workers))
		require.NoError(t, err)
		require.NoError(t, builder.AddSegment(format.RoleKernel, repetitive(40000), SegmentOptions{
			Compression: format.CompressionZstd,
		}))
		require.NoError(t, builder.AddSegment(format.RoleRootfs, repetitive(90000), SegmentOptions{
			Compression: format.CompressionZstd,
		}))
		require.NoError(t, builder.AddSegment(format.RoleConfig, random(512, 7), SegmentOptions{
			Compression: format.CompressionLZ4,
		}))

		data, err := builder.Build()
		require.NoError(t, err)

		return data
	}

	first := build(1)
	second := build(1)
	parallel := build(8)

	require.True(t, bytes.Equal(first, second), "same inputs must serialize identically")
	require.True(t, bytes.Equal(first, parallel), "worker count must not change output bytes")

	// Building twice from the same builder is also byte-identical.
	builder, _ := NewBuilder(WithImageName("repro"), WithWorkerCount(4))
	require.NoError(t, builder.AddSegment(format.RoleKernel, repetitive(40000), SegmentOptions{
		Compression: format.CompressionZstd,
	}))
	a, err := builder.Build()
	require.NoError(t, err)
	b, err := builder.Build()
	require.NoError(t, err)
	require.True(t, bytes.Equal(a, b))
}

func TestBuilder_OffsetInvariants(t *testing.T) {
	builder, _ := NewBuilder()
	// Deliberately awkward sizes to force alignment padding.
	require.NoError(t, builder.AddSegment(format.RoleKernel, random(101, 2), SegmentOptions{}))
	require.NoError(t, builder.AddSegment(format.RoleDeviceTree, random(1, 3), SegmentOptions{}))
	require.NoError(t, builder.AddSegment(format.RoleConfig, random(4097, 4), SegmentOptions{}))

	data, err := builder.Build()
	require.NoError(t, err)

	reader, err := Open(data)
	require.NoError(t, err)

	entries := reader.Entries()
	prevEnd := section.PayloadStart(len(entries))
	for i, entry := range entries {
		require.Zero(t, entry.Offset%section.PayloadAlign, "segment %d misaligned", i)
		require.GreaterOrEqual(t, entry.Offset, prevEnd, "segment %d overlaps predecessor", i)
		require.LessOrEqual(t, entry.Offset-prevEnd, uint64(section.PayloadAlign-1), "segment %d leaves a gap", i)
		prevEnd = entry.End()
	}
	require.Equal(t, prevEnd, reader.TotalImageSize())
	require.Equal(t, prevEnd, uint64(len(data)))
}

func TestBuilder_CompressionFallback(t *testing.T) {
	// Random data cannot shrink; every codec's framing would expand it, so
	// the builder must store it uncompressed and record that.
	incompressible := random(8192, 99)

	for _, comp := range []format.CompressionType{
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	} {
		builder, _ := NewBuilder()
		require.NoError(t, builder.AddSegment(format.RoleConfig, incompressible, SegmentOptions{
			Compression: comp,
		}))

		data, err := builder.Build()
		require.NoError(t, err)

		reader, err := Open(data)
		require.NoError(t, err)

		entry := reader.Entries()[0]
		require.Equal(t, format.CompressionNone, entry.Compression, "codec %s", comp)
		require.Equal(t, uint64(len(incompressible)), entry.StoredLength)
		require.Equal(t, entry.RawLength, entry.StoredLength)

		got, err := reader.Segment(format.RoleConfig)
		require.NoError(t, err)
		require.True(t, bytes.Equal(incompressible, got))
	}
}

func TestBuilder_AddSegmentReader(t *testing.T) {
	payload := repetitive(10000)

	builder, _ := NewBuilder()
	require.NoError(t, builder.AddSegmentReader(format.RoleRootfs, bytes.NewReader(payload), SegmentOptions{
		Compression: format.CompressionZstd,
	}))

	data, err := builder.Build()
	require.NoError(t, err)

	reader, err := Open(data)
	require.NoError(t, err)

	got, err := reader.Segment(format.RoleRootfs)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestBuilder_BuildFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("success", func(t *testing.T) {
		path := filepath.Join(dir, "out.nimg")

		builder, _ := NewBuilder(WithImageName("file-test"))
		require.NoError(t, builder.AddSegment(format.RoleConfig, []byte("cfg"), SegmentOptions{}))
		require.NoError(t, builder.BuildFile(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		reader, err := Open(data)
		require.NoError(t, err)
		require.Equal(t, "file-test", reader.Name())
	})

	t.Run("failed build leaves no file", func(t *testing.T) {
		path := filepath.Join(dir, "never.nimg")

		builder, _ := NewBuilder()
		err := builder.BuildFile(path)
		require.Error(t, err)

		_, statErr := os.Stat(path)
		require.True(t, os.IsNotExist(statErr))

		leftovers, err := filepath.Glob(filepath.Join(dir, "never.nimg.tmp*"))
		require.NoError(t, err)
		require.Empty(t, leftovers)
	})
}
