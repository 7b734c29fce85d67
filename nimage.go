// Package nimage implements the nImage container format for embedded
// firmware payloads: a single self-describing file that packages a kernel,
// device tree, root filesystem, and config blobs with end-to-end integrity
// checking.
//
// # Format
//
//   - 96-byte header: magic "NIMG", version, segment count, total size,
//     xxHash64 header checksum, image name
//   - up to 16 fixed-width segment table entries: role, compression kind,
//     offset, stored/raw lengths, xxHash64 of the stored bytes, and load
//     metadata for kernel segments
//   - segment payloads packed on 4-byte alignment, optionally compressed
//     with zstd, s2, or lz4
//
// Segment checksums cover the stored (possibly compressed) bytes, so an
// image can be verified without decompressing anything.
//
// # Basic Usage
//
// Building an image:
//
//	builder, _ := nimage.NewBuilder(nimage.WithImageName("pi-fw-2026.08"))
//	_ = builder.AddSegment(format.RoleKernel, kernelBytes, nimage.SegmentOptions{
//	    Compression: format.CompressionZstd,
//	    LoadAddress: 0x80000,
//	})
//	_ = builder.AddSegment(format.RoleRootfs, rootfsBytes, nimage.SegmentOptions{
//	    Compression: format.CompressionZstd,
//	})
//	err := builder.BuildFile("firmware.nimg")
//
// Verifying and extracting:
//
//	reader, err := nimage.OpenFile("firmware.nimg")
//	if err != nil {
//	    // bad magic, failed checksum, truncation, ...
//	}
//	kernel, _ := reader.Segment(format.RoleKernel)
//
// This package is a thin convenience layer; the image, flash, section, and
// compress packages expose the full API.
package nimage

import (
	"os"

	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/image"
)

// Re-exported core types for the common paths.
type (
	Builder        = image.Builder
	BuilderOption  = image.BuilderOption
	SegmentOptions = image.SegmentOptions
	Reader         = image.Reader
	ReaderOption   = image.ReaderOption
)

// Builder constructors and options.
var (
	NewBuilder          = image.NewBuilder
	WithImageName       = image.WithImageName
	WithWorkerCount     = image.WithWorkerCount
	WithExpansionMargin = image.WithExpansionMargin
)

// Reader constructors and options.
var (
	Open    = image.Open
	Report  = image.Report
	Relaxed = image.Relaxed
)

// OpenFile reads path fully into memory and opens it as a container.
func OpenFile(path string, opts ...ReaderOption) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return image.Open(data, opts...)
}

// Checksum computes the xxHash64 digest the format uses everywhere.
func Checksum(data []byte) uint64 {
	return checksum.Sum64(data)
}
