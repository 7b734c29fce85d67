package nimage

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimage-project/nimage/format"
)

func TestBuildAndOpenFile(t *testing.T) {
	kernel := bytes.Repeat([]byte("kernel-image-"), 500)
	config := []byte(`{"bank":"b"}`)
	path := filepath.Join(t.TempDir(), "firmware.nimg")

	builder, err := NewBuilder(WithImageName("pi-fw-2026.08"))
	require.NoError(t, err)
	require.NoError(t, builder.AddSegment(format.RoleKernel, kernel, SegmentOptions{
		Compression: format.CompressionZstd,
		LoadAddress: 0x80000,
		EntryPoint:  0x80000,
	}))
	require.NoError(t, builder.AddSegment(format.RoleConfig, config, SegmentOptions{}))
	require.NoError(t, builder.BuildFile(path))

	reader, err := OpenFile(path)
	require.NoError(t, err)
	require.Equal(t, "pi-fw-2026.08", reader.Name())
	require.True(t, reader.FullyVerified())

	got, err := reader.Segment(format.RoleKernel)
	require.NoError(t, err)
	require.True(t, bytes.Equal(kernel, got))
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.nimg"))
	require.Error(t, err)
}

func TestChecksum(t *testing.T) {
	require.Equal(t, uint64(0xef46db3751d8e999), Checksum(nil))
	require.NotEqual(t, Checksum([]byte("a")), Checksum([]byte("b")))
}
