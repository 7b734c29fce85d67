package section

import (
	"bytes"

	"github.com/nimage-project/nimage/endian"
	"github.com/nimage-project/nimage/errs"
)

// Header represents the fixed-size container header at the start of an
// nImage file.
type Header struct {
	// VersionMajor is the format major version. Readers reject anything
	// other than the current VersionMajor constant.
	VersionMajor uint8 // byte offset 4
	// VersionMinor is informational; minor revisions are wire compatible.
	VersionMinor uint8 // byte offset 5
	// SegmentCount is the number of segment table entries that follow the
	// header, up to MaxSegments.
	SegmentCount uint16 // byte offset 6-7
	// TotalImageSize is the byte length of the fully serialized container,
	// used for truncation detection.
	TotalImageSize uint64 // byte offset 8-15
	// HeaderChecksum is the xxHash64 of the serialized header plus segment
	// table, computed with this field zeroed.
	HeaderChecksum uint64 // byte offset 16-23
	// Name is the image name, up to MaxNameLen bytes, NUL padded on disk.
	Name string // byte offset 24-87
}

// NewHeader creates a header for the current format version. Segment count,
// sizes, and checksum are filled in when the builder finishes layout.
func NewHeader(name string) *Header {
	return &Header{
		VersionMajor: VersionMajor,
		VersionMinor: VersionMinor,
		Name:         name,
	}
}

// Parse parses and validates a header from a byte slice.
//
// data must be exactly HeaderSize bytes. The header checksum field is
// extracted but not verified here; its domain includes the segment table,
// so the image package verifies it once the table bytes are available.
func (h *Header) Parse(data []byte) error {
	if len(data) != HeaderSize {
		return errs.Formatf(errs.ErrInvalidHeaderSize, "expected %d bytes, got %d", HeaderSize, len(data))
	}

	if string(data[magicOffset:magicOffset+4]) != Magic {
		return errs.Formatf(errs.ErrInvalidMagicNumber, "expected %q, got %q", Magic, data[magicOffset:magicOffset+4])
	}

	h.VersionMajor = data[verMajorOffset]
	h.VersionMinor = data[verMinorOffset]
	if h.VersionMajor != VersionMajor {
		return errs.Formatf(errs.ErrUnsupportedVersion, "major version %d, supported %d", h.VersionMajor, VersionMajor)
	}

	engine := endian.GetLittleEndianEngine()
	h.SegmentCount = engine.Uint16(data[countOffset : countOffset+2])
	if h.SegmentCount > MaxSegments {
		return errs.Formatf(errs.ErrSegmentCountExceeds, "count %d, maximum %d", h.SegmentCount, MaxSegments)
	}

	h.TotalImageSize = engine.Uint64(data[sizeOffset : sizeOffset+8])
	h.HeaderChecksum = engine.Uint64(data[checksumOffset : checksumOffset+8])

	// Name is NUL padded; everything after the first NUL is ignored.
	name := data[nameOffset : nameOffset+MaxNameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	h.Name = string(name)

	return nil
}

// Bytes serializes the header into a new HeaderSize byte slice. The
// HeaderChecksum field is written as-is; callers computing the checksum
// serialize once with the field zeroed.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	engine := endian.GetLittleEndianEngine()
	copy(b[magicOffset:], Magic)
	b[verMajorOffset] = h.VersionMajor
	b[verMinorOffset] = h.VersionMinor
	engine.PutUint16(b[countOffset:countOffset+2], h.SegmentCount)
	engine.PutUint64(b[sizeOffset:sizeOffset+8], h.TotalImageSize)
	engine.PutUint64(b[checksumOffset:checksumOffset+8], h.HeaderChecksum)
	copy(b[nameOffset:nameOffset+MaxNameLen], h.Name)

	return b
}

// ZeroChecksumField zeroes the checksum field inside an already serialized
// header, for computing or verifying the header checksum.
func ZeroChecksumField(header []byte) {
	for i := checksumOffset; i < checksumOffset+8; i++ {
		header[i] = 0
	}
}
