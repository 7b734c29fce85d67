package section

import (
	"github.com/nimage-project/nimage/endian"
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
)

// SegmentEntry is one fixed-width segment table entry, describing one named
// payload region inside the container.
type SegmentEntry struct {
	// Role identifies the segment's purpose (kernel, dtb, rootfs, ...).
	Role format.RoleTag // byte offset 0
	// Compression identifies the codec that produced the stored bytes.
	Compression format.CompressionType // byte offset 1
	// Offset is the byte offset of the payload from the start of the container.
	Offset uint64 // byte offset 8-15
	// StoredLength is the payload length as stored, post-compression.
	StoredLength uint64 // byte offset 16-23
	// RawLength is the decompressed payload length; equals StoredLength
	// when the segment is uncompressed.
	RawLength uint64 // byte offset 24-31
	// Checksum is the xxHash64 of the stored bytes. Verification never
	// requires decompression.
	Checksum uint64 // byte offset 32-39
	// LoadAddress is the target memory address for loadable roles, else zero.
	LoadAddress uint64 // byte offset 40-47
	// EntryPoint is the execution entry point for loadable roles, else zero.
	EntryPoint uint64 // byte offset 48-55
}

// Parse parses a segment table entry from a byte slice.
// data must be exactly EntrySize bytes. Field-range validation is separate
// (Validate) so report-mode readers can inspect malformed entries.
func (e *SegmentEntry) Parse(data []byte) error {
	if len(data) != EntrySize {
		return errs.Formatf(errs.ErrInvalidEntrySize, "expected %d bytes, got %d", EntrySize, len(data))
	}

	engine := endian.GetLittleEndianEngine()
	e.Role = format.RoleTag(data[entryRoleOffset])
	e.Compression = format.CompressionType(data[entryCompOffset])
	e.Offset = engine.Uint64(data[entryOffsetOffset : entryOffsetOffset+8])
	e.StoredLength = engine.Uint64(data[entryStoredOffset : entryStoredOffset+8])
	e.RawLength = engine.Uint64(data[entryRawOffset : entryRawOffset+8])
	e.Checksum = engine.Uint64(data[entryChecksumOffset : entryChecksumOffset+8])
	e.LoadAddress = engine.Uint64(data[entryLoadOffset : entryLoadOffset+8])
	e.EntryPoint = engine.Uint64(data[entryEntryOffset : entryEntryOffset+8])

	return nil
}

// Bytes serializes the entry into a new EntrySize byte slice.
// Reserved regions are written as zero.
func (e *SegmentEntry) Bytes() []byte {
	b := make([]byte, EntrySize)

	engine := endian.GetLittleEndianEngine()
	b[entryRoleOffset] = uint8(e.Role)
	b[entryCompOffset] = uint8(e.Compression)
	engine.PutUint64(b[entryOffsetOffset:entryOffsetOffset+8], e.Offset)
	engine.PutUint64(b[entryStoredOffset:entryStoredOffset+8], e.StoredLength)
	engine.PutUint64(b[entryRawOffset:entryRawOffset+8], e.RawLength)
	engine.PutUint64(b[entryChecksumOffset:entryChecksumOffset+8], e.Checksum)
	engine.PutUint64(b[entryLoadOffset:entryLoadOffset+8], e.LoadAddress)
	engine.PutUint64(b[entryEntryOffset:entryEntryOffset+8], e.EntryPoint)

	return b
}

// Validate checks the entry's field ranges in isolation: known role and
// compression values, length relations, and load fields zeroed for
// non-loadable roles. Cross-entry invariants (offset ordering, bounds
// against the total image size) belong to the container-level validation.
func (e *SegmentEntry) Validate() error {
	if !e.Role.IsValid() {
		return errs.Formatf(errs.ErrInvalidRoleTag, "role tag 0x%02x", uint8(e.Role))
	}
	if !e.Compression.IsValid() {
		return errs.Formatf(errs.ErrInvalidCompression, "compression type 0x%02x", uint8(e.Compression))
	}

	if e.Compression == format.CompressionNone {
		if e.RawLength != e.StoredLength {
			return errs.Formatf(errs.ErrLengthInversion,
				"%s segment stored uncompressed but raw length %d != stored length %d",
				e.Role, e.RawLength, e.StoredLength)
		}
	} else if e.RawLength < e.StoredLength {
		// Pathological expansion is a build error; it must never reach disk.
		return errs.Formatf(errs.ErrLengthInversion,
			"%s segment raw length %d < stored length %d", e.Role, e.RawLength, e.StoredLength)
	}

	if !e.Role.Loadable() && (e.LoadAddress != 0 || e.EntryPoint != 0) {
		return errs.Formatf(errs.ErrLoadFieldsNotZero,
			"%s segment has load address 0x%x, entry point 0x%x", e.Role, e.LoadAddress, e.EntryPoint)
	}

	return nil
}

// End returns the offset one past the last stored payload byte.
func (e *SegmentEntry) End() uint64 {
	return e.Offset + e.StoredLength
}
