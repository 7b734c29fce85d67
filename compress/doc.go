// Package compress provides the compression codecs for nImage segment
// payloads.
//
// Compression is applied per segment at build time; the segment table
// records which codec produced the stored bytes. Segment checksums always
// cover the stored (compressed) form, so verification never needs to
// decompress.
//
// The package defines three interfaces:
//
//	type Compressor interface {
//	    Compress(data []byte) ([]byte, error)
//	}
//
//	type Decompressor interface {
//	    Decompress(data []byte, rawSize int) ([]byte, error)
//	}
//
//	type Codec interface {
//	    Compressor
//	    Decompressor
//	}
//
// Supported algorithms:
//   - None: stored as-is; the fallback when compression would expand data
//   - Zstd: best ratio, the default for rootfs-sized payloads
//   - S2: balanced ratio and speed
//   - LZ4: fastest decompression, useful on slow boot CPUs
//
// All codecs are deterministic: the same input and settings produce the
// same output bytes regardless of how many builder workers run. Codecs are
// safe for concurrent use; compressor and decompressor state is pooled
// internally where the underlying library benefits from reuse.
package compress
