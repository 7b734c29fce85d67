// Package section defines the fixed-width on-disk structures of the nImage
// container format: the 96-byte container header and the 64-byte segment
// table entries.
//
// Everything here is byte layout only. Structural validation across
// sections (offset ordering, size accounting, checksum verification over
// payload bytes) lives in the image package; this package checks only what
// a single section can know about itself (magic, version, field ranges).
//
// All multi-byte fields are little-endian.
package section
