//go:build cgo_zstd

package compress

import (
	"fmt"

	"github.com/valyala/gozstd"
)

// libzstd-backed variant, selected with -tags cgo_zstd. Produces standard
// zstd frames interchangeable with the pure-Go implementation.

// Compress compresses the input data into a zstd frame using libzstd.
func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, 9), nil
}

// Decompress decompresses a zstd frame back into the original payload.
// When rawSize is known the result must match it exactly.
func (c ZstdCodec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) == 0 {
		if rawSize > 0 {
			return nil, fmt.Errorf("zstd segment is empty but %d raw bytes are expected", rawSize)
		}

		return nil, nil
	}

	decompressed, err := gozstd.Decompress(nil, data)
	if err != nil {
		return nil, fmt.Errorf("zstd decompression failed: %w", err)
	}

	if rawSize >= 0 && len(decompressed) != rawSize {
		return nil, fmt.Errorf("zstd frame decoded to %d bytes, expected %d", len(decompressed), rawSize)
	}

	return decompressed, nil
}
