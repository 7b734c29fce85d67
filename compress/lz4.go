package compress

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4CompressorPool pools lz4.Compressor instances for reuse.
// The lz4.Compressor maintains internal state that benefits from reuse.
var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// LZ4Codec provides LZ4 block compression for segment payloads.
//
// LZ4 blocks are not self-framed: they do not record the decompressed size,
// so Decompress requires the raw length from the segment table. The fast
// decompression makes LZ4 attractive for kernel segments unpacked by slow
// boot-time CPUs.
type LZ4Codec struct{}

var _ Codec = (*LZ4Codec)(nil)

// NewLZ4Codec creates a new LZ4 codec.
func NewLZ4Codec() LZ4Codec {
	return LZ4Codec{}
}

// Compress compresses the input data as a single LZ4 block.
func (c LZ4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	// n == 0 means the block is incompressible; callers treat an empty
	// result for non-empty input as their cue to store the data raw.
	n, err := lc.CompressBlock(data, dst)
	if err != nil {
		return nil, err
	}

	return dst[:n], nil
}

// Decompress decompresses an LZ4 block back into the original payload.
// rawSize must be the exact decompressed size from the segment table; LZ4
// blocks carry no size information of their own.
func (c LZ4Codec) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) == 0 {
		if rawSize > 0 {
			return nil, fmt.Errorf("lz4 segment is empty but %d raw bytes are expected", rawSize)
		}

		return nil, nil
	}
	if rawSize < 0 {
		return nil, fmt.Errorf("lz4 block decompression requires a known raw size")
	}

	buf := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 block decoded to %d bytes, expected %d", n, rawSize)
	}

	return buf[:n], nil
}
