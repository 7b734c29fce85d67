// Package checksum provides the xxHash64 digest used for every integrity
// check in the nImage format: per-segment checksums over stored bytes, the
// whole-header checksum, and read-back verification after device writes.
//
// xxHash64 is fast and non-cryptographic. It detects corruption; it does not
// authenticate content.
package checksum

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// Size is the width of a serialized checksum in bytes.
const Size = 8

// Sum64 computes the one-shot xxHash64 of data.
func Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Digest is a streaming xxHash64 state. The zero value is not usable; create
// one with NewDigest.
type Digest = xxhash.Digest

// NewDigest creates a streaming digest for incremental hashing.
func NewDigest() *Digest {
	return xxhash.New()
}

// Reader wraps an io.Reader and hashes all bytes read through it.
// The flashing path uses this to checksum payload data while copying,
// avoiding a second pass over large segments.
type Reader struct {
	inner io.Reader
	xxh   *xxhash.Digest
	count uint64
}

// NewReader wraps inner with a hashing reader.
func NewReader(inner io.Reader) *Reader {
	return &Reader{inner: inner, xxh: xxhash.New()}
}

// Read reads from the inner reader and folds the returned bytes into the
// hash. Hashing never fails, so the inner reader's contract is preserved.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		_, _ = r.xxh.Write(p[:n])
		r.count += uint64(n)
	}

	return n, err
}

// Sum64 returns the hash of all bytes read so far.
func (r *Reader) Sum64() uint64 {
	return r.xxh.Sum64()
}

// Count returns the total number of bytes read so far.
func (r *Reader) Count() uint64 {
	return r.count
}

// Writer wraps an io.Writer and hashes all bytes written through it.
type Writer struct {
	inner io.Writer
	xxh   *xxhash.Digest
	count uint64
}

// NewWriter wraps inner with a hashing writer.
func NewWriter(inner io.Writer) *Writer {
	return &Writer{inner: inner, xxh: xxhash.New()}
}

// Write writes to the inner writer and folds the accepted bytes into the
// hash. Only bytes the inner writer accepted are hashed.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	if n > 0 {
		_, _ = w.xxh.Write(p[:n])
		w.count += uint64(n)
	}

	return n, err
}

// Sum64 returns the hash of all bytes written so far.
func (w *Writer) Sum64() uint64 {
	return w.xxh.Sum64()
}

// Count returns the total number of bytes written so far.
func (w *Writer) Count() uint64 {
	return w.count
}
