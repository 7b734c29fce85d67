package compress

import (
	"fmt"

	"github.com/nimage-project/nimage/format"
)

// Compressor compresses one segment payload.
type Compressor interface {
	// Compress compresses the input data and returns the compressed result.
	//
	// Memory management:
	//   - Returned slice is newly allocated and owned by the caller
	//   - Input slice is not modified
	//   - Internal buffers may be reused for efficiency
	Compress(data []byte) ([]byte, error)
}

// Decompressor restores a segment payload from its stored form.
type Decompressor interface {
	// Decompress decompresses the input data and returns the original
	// payload. rawSize is the expected decompressed size from the segment
	// table; codecs whose frames do not record the original size (LZ4
	// blocks) need it to size the output buffer, and all codecs use it as
	// an upper bound sanity check. Pass a negative rawSize when the size is
	// unknown.
	//
	// Returns an error if the input is corrupted or was produced by an
	// incompatible codec.
	Decompress(data []byte, rawSize int) ([]byte, error)
}

// Codec combines compression and decompression for one algorithm.
type Codec interface {
	Compressor
	Decompressor
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCodec(),
	format.CompressionZstd: NewZstdCodec(),
	format.CompressionS2:   NewS2Codec(),
	format.CompressionLZ4:  NewLZ4Codec(),
}

// GetCodec retrieves the built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
