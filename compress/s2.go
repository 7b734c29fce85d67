package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// S2Codec provides S2 compression, a faster Snappy-compatible format with a
// better ratio. A reasonable middle ground between Zstd and LZ4 for config
// and device tree segments.
type S2Codec struct{}

var _ Codec = (*S2Codec)(nil)

// NewS2Codec creates a new S2 codec.
func NewS2Codec() S2Codec {
	return S2Codec{}
}

// Compress compresses the input data using S2 compression.
func (c S2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

// Decompress decompresses the input data using S2 decompression.
// When rawSize is known the result must match it exactly.
func (c S2Codec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) == 0 {
		if rawSize > 0 {
			return nil, fmt.Errorf("s2 segment is empty but %d raw bytes are expected", rawSize)
		}

		return nil, nil
	}

	decompressed, err := s2.Decode(nil, data)
	if err != nil {
		return nil, err
	}

	if rawSize >= 0 && len(decompressed) != rawSize {
		return nil, fmt.Errorf("s2 stream decoded to %d bytes, expected %d", len(decompressed), rawSize)
	}

	return decompressed, nil
}
