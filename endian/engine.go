// Package endian provides byte order utilities for binary encoding and decoding.
//
// It combines the ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single EndianEngine interface. The nImage wire
// format is always little-endian, so most callers only ever need
// GetLittleEndianEngine; the big-endian engine exists for tooling that has
// to inspect foreign firmware blobs.
package endian

import (
	"encoding/binary"
)

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface for convenient byte order operations. It is
// satisfied by binary.LittleEndian and binary.BigEndian.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine used by the nImage
// on-disk format. The returned engine is immutable and safe for concurrent use.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns a big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
