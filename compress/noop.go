package compress

import "fmt"

// NoOpCodec passes data through unchanged. It backs format.CompressionNone
// and the builder's expansion fallback, where a segment marked compressible
// turns out to be incompressible and is stored raw instead.
type NoOpCodec struct{}

var _ Codec = (*NoOpCodec)(nil)

// NewNoOpCodec creates a codec that stores data as-is.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

// Compress returns the input slice unchanged, without copying.
//
// The returned slice shares memory with the input; callers must not modify
// the input afterwards if they use the result.
func (c NoOpCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

// Decompress returns the input slice unchanged, without copying.
// When rawSize is known it must equal the stored size.
func (c NoOpCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if rawSize >= 0 && rawSize != len(data) {
		return nil, fmt.Errorf("uncompressed segment size %d does not match expected %d", len(data), rawSize)
	}

	return data, nil
}
