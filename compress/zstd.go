package compress

// ZstdCodec provides Zstandard compression for segment payloads.
//
// Zstd gives the best ratio of the supported codecs and is the usual choice
// for large payloads (rootfs images compress 2-4x). Two implementations
// exist: the pure-Go klauspost/compress encoder (default) and a cgo
// binding of libzstd selected with the cgo_zstd build tag. Both produce
// standard zstd frames and read each other's output; within one build the
// output is deterministic, which the builder relies on for reproducible
// images.
type ZstdCodec struct{}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a new Zstd codec with default settings.
func NewZstdCodec() ZstdCodec {
	return ZstdCodec{}
}
