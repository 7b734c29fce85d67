package section

// Wire-format constants. These values are the format contract: changing any
// of them is a major version bump.
const (
	// Magic is the 4-byte signature at the start of every container, "NIMG".
	Magic = "NIMG"

	// VersionMajor is the current major format version. Readers reject
	// containers with a different major version.
	VersionMajor = 1
	// VersionMinor is the current minor format version, informational only.
	VersionMinor = 0

	// HeaderSize is the fixed container header size in bytes.
	HeaderSize = 96
	// EntrySize is the fixed segment table entry size in bytes.
	EntrySize = 64

	// MaxSegments bounds the segment table.
	MaxSegments = 16
	// MaxNameLen is the maximum image name length in bytes, without a
	// NUL terminator.
	MaxNameLen = 64

	// PayloadAlign is the alignment boundary for segment payload offsets.
	// Gaps between segments are zero padding up to this boundary.
	PayloadAlign = 4
)

// Header field byte offsets.
const (
	magicOffset    = 0  // bytes 0-3
	verMajorOffset = 4  // byte 4
	verMinorOffset = 5  // byte 5
	countOffset    = 6  // bytes 6-7
	sizeOffset     = 8  // bytes 8-15
	checksumOffset = 16 // bytes 16-23
	nameOffset     = 24 // bytes 24-87, NUL padded
	// bytes 88-95 reserved, zero
)

// Segment entry field byte offsets.
const (
	entryRoleOffset     = 0 // byte 0
	entryCompOffset     = 1 // byte 1
	// bytes 2-7 reserved, zero
	entryOffsetOffset   = 8  // bytes 8-15
	entryStoredOffset   = 16 // bytes 16-23
	entryRawOffset      = 24 // bytes 24-31
	entryChecksumOffset = 32 // bytes 32-39
	entryLoadOffset     = 40 // bytes 40-47
	entryEntryOffset    = 48 // bytes 48-55
	// bytes 56-63 reserved, zero
)

// TableSize returns the serialized size of a segment table with count entries.
func TableSize(count int) int {
	return count * EntrySize
}

// PayloadStart returns the offset of the first payload byte for a container
// with count segments, already aligned (HeaderSize and EntrySize are both
// multiples of PayloadAlign).
func PayloadStart(count int) uint64 {
	return uint64(HeaderSize + TableSize(count))
}

// AlignUp rounds n up to the next PayloadAlign boundary.
func AlignUp(n uint64) uint64 {
	return (n + PayloadAlign - 1) &^ uint64(PayloadAlign-1)
}
