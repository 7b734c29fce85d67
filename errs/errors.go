// Package errs defines the error taxonomy for nImage containers.
//
// Structural problems (bad magic, bad version, overlapping segments) are
// FormatError. Input-side build problems are BuildError. Checksum mismatches
// found during verification are VerifyError. A decompression failure on a
// segment whose stored-bytes checksum already matched is DecompressError.
// Device I/O failures that survived retrying are WriteError.
//
// Sentinel errors classify the reason; the typed errors wrap a sentinel and
// carry enough context (role, offsets, expected/actual checksum) to diagnose
// a failure without re-running.
package errs

import (
	"errors"
	"fmt"

	"github.com/nimage-project/nimage/format"
)

// Structural sentinels, matched with errors.Is through FormatError.
var (
	ErrInvalidMagicNumber  = errors.New("invalid magic number")
	ErrUnsupportedVersion  = errors.New("unsupported format version")
	ErrInvalidHeaderSize   = errors.New("invalid header size")
	ErrInvalidEntrySize    = errors.New("invalid segment entry size")
	ErrHeaderChecksum      = errors.New("header checksum mismatch")
	ErrInvalidRoleTag      = errors.New("invalid role tag")
	ErrInvalidCompression  = errors.New("invalid compression type")
	ErrSegmentCountExceeds = errors.New("segment count exceeds maximum")
	ErrSegmentOverlap      = errors.New("segment offsets overlap or are not increasing")
	ErrSegmentOutOfBounds  = errors.New("segment extends past total image size")
	ErrImageSizeMismatch   = errors.New("total image size mismatch")
	ErrImageTruncated      = errors.New("image truncated")
	ErrLengthInversion     = errors.New("raw length smaller than stored length")
	ErrPaddingNotZero      = errors.New("non-zero alignment padding between segments")
	ErrLoadFieldsNotZero   = errors.New("load fields set on non-loadable role")
)

// Build-side sentinels.
var (
	ErrTooManySegments    = errors.New("too many segments")
	ErrDuplicateRole      = errors.New("duplicate role tag")
	ErrSourceTooLarge     = errors.New("source too large")
	ErrNameTooLong        = errors.New("image name too long")
	ErrCompressionFailure = errors.New("compression failure")
	ErrNoSegments         = errors.New("no segments added")
)

// Access and transfer sentinels.
var (
	ErrSegmentNotFound   = errors.New("segment not found")
	ErrSegmentCorrupt    = errors.New("segment failed verification")
	ErrRegionTooSmall    = errors.New("destination region too small")
	ErrRoleNotPlanned    = errors.New("role missing from flash plan")
	ErrWriteShort        = errors.New("short write to device")
	ErrReadBackMismatch  = errors.New("read-back checksum mismatch")
	ErrWritesExhausted   = errors.New("write retries exhausted")
	ErrVerifyBeforeWrite = errors.New("container failed verification before write")
)

// FormatError reports a structural problem in a serialized container. It is
// always fatal and never retried.
type FormatError struct {
	Reason error  // one of the structural sentinels
	Detail string // human-readable specifics (field values, indexes)
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("format error: %v", e.Reason)
	}

	return fmt.Sprintf("format error: %v: %s", e.Reason, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Reason }

// Formatf builds a FormatError from a structural sentinel and detail text.
func Formatf(reason error, msg string, args ...any) *FormatError {
	return &FormatError{Reason: reason, Detail: fmt.Sprintf(msg, args...)}
}

// BuildError reports an input-side problem detected before any output bytes
// are produced.
type BuildError struct {
	Kind error // one of the build sentinels
	Role format.RoleTag
	Err  error // underlying cause, if any
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build error for %s segment: %v", e.Role, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *BuildError) Unwrap() error { return e.Kind }

// VerifyError reports a checksum mismatch for one segment. In strict mode it
// aborts verification; in report mode mismatches are collected.
type VerifyError struct {
	Role     format.RoleTag
	Offset   uint64
	Expected uint64
	Actual   uint64
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s segment at offset %d failed verification: expected checksum 0x%016x, actual 0x%016x",
		e.Role, e.Offset, e.Expected, e.Actual)
}

func (e *VerifyError) Unwrap() error { return ErrSegmentCorrupt }

// DecompressError reports a corrupt compressed stream in a segment whose
// stored-bytes checksum already matched. This should never happen and is a
// data-integrity alarm distinct from simple corruption.
type DecompressError struct {
	Role format.RoleTag
	Kind format.CompressionType
	Err  error
}

func (e *DecompressError) Error() string {
	return fmt.Sprintf("%s segment: %s decompression failed despite valid checksum: %v", e.Role, e.Kind, e.Err)
}

func (e *DecompressError) Unwrap() error { return e.Err }

// WriteError reports a device write that failed after exhausting retries.
// It aborts the remaining write sequence; the device may be left in a mixed
// state and requires manual intervention.
type WriteError struct {
	Role     format.RoleTag
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write of %s segment failed after %d attempts: %v", e.Role, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
