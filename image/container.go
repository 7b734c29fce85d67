package image

import (
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/format"
	"github.com/nimage-project/nimage/section"
)

// Container is the in-memory representation of an nImage: the global header
// plus the ordered segment table. It carries no payload bytes; those live in
// the serialized stream the entries point into.
type Container struct {
	Header   *section.Header
	Segments []section.SegmentEntry
}

// ValidateStructure checks the container's structural invariants without
// touching payload bytes. It is deterministic and has no side effects.
//
// Checked invariants:
//   - segment count in the header matches the table
//   - every entry passes its own field validation
//   - raw lengths stay within the MaxSourceSize bound
//   - non-repeatable roles appear at most once
//   - the first payload starts at or after the end of the table
//   - offsets are aligned, strictly increasing, and non-overlapping
//   - every segment ends within the total image size
//   - the total image size equals the end of the last segment
//     (or the table end when there are no segments)
func (c *Container) ValidateStructure() error {
	if int(c.Header.SegmentCount) != len(c.Segments) {
		return errs.Formatf(errs.ErrImageSizeMismatch,
			"header declares %d segments, table has %d", c.Header.SegmentCount, len(c.Segments))
	}

	seen := make(map[format.RoleTag]bool, len(c.Segments))
	minOffset := section.PayloadStart(len(c.Segments))
	end := minOffset

	for i := range c.Segments {
		entry := &c.Segments[i]
		if err := entry.Validate(); err != nil {
			return err
		}

		// The builder bounds every source at MaxSourceSize, so a larger raw
		// length can only come from a forged table. Rejecting it here keeps
		// the decompression buffer allocation bounded by a trusted value.
		if entry.RawLength > MaxSourceSize {
			return errs.Formatf(errs.ErrSourceTooLarge,
				"segment %d (%s) raw length %d exceeds maximum %d", i, entry.Role, entry.RawLength, uint64(MaxSourceSize))
		}

		if seen[entry.Role] && !entry.Role.Repeatable() {
			return errs.Formatf(errs.ErrDuplicateRole, "role %s appears more than once", entry.Role)
		}
		seen[entry.Role] = true

		if entry.Offset%section.PayloadAlign != 0 {
			return errs.Formatf(errs.ErrSegmentOverlap,
				"segment %d (%s) offset %d not aligned to %d", i, entry.Role, entry.Offset, section.PayloadAlign)
		}
		if entry.Offset < end {
			return errs.Formatf(errs.ErrSegmentOverlap,
				"segment %d (%s) offset %d overlaps previous end %d", i, entry.Role, entry.Offset, end)
		}
		// Only alignment padding may sit between segments.
		if entry.Offset >= section.AlignUp(end)+section.PayloadAlign {
			return errs.Formatf(errs.ErrSegmentOverlap,
				"segment %d (%s) offset %d leaves a gap after %d", i, entry.Role, entry.Offset, end)
		}

		if entry.End() < entry.Offset {
			return errs.Formatf(errs.ErrSegmentOutOfBounds,
				"segment %d (%s) length overflows", i, entry.Role)
		}
		if entry.End() > c.Header.TotalImageSize {
			return errs.Formatf(errs.ErrSegmentOutOfBounds,
				"segment %d (%s) ends at %d past total image size %d", i, entry.Role, entry.End(), c.Header.TotalImageSize)
		}

		end = entry.End()
	}

	if c.Header.TotalImageSize != end {
		return errs.Formatf(errs.ErrImageSizeMismatch,
			"total image size %d, last segment ends at %d", c.Header.TotalImageSize, end)
	}

	return nil
}

// FindRole returns the index of the first segment with the given role, or -1.
func (c *Container) FindRole(role format.RoleTag) int {
	for i := range c.Segments {
		if c.Segments[i].Role == role {
			return i
		}
	}

	return -1
}
