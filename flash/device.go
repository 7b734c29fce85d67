// Package flash streams a verified nImage container's segments onto target
// storage: raw partitions, MTD devices, or plain files standing in for them.
//
// The package owns the transfer policy only. Enumerating devices, mounting,
// and confirming that a destination really is the intended device are the
// caller's job; by the time a Device handle reaches the Writer, writing to
// it is assumed to be safe and destructive.
//
// A destination is exclusively owned by one Writer invocation for the whole
// container write. Running two Writers against the same device concurrently
// corrupts it; callers must prevent that.
package flash

import (
	"io"
	"os"
)

// Device is the target storage abstraction the Writer writes through.
// *os.File satisfies it, so a raw partition opened read-write works
// directly.
type Device interface {
	io.WriterAt
	io.ReaderAt
}

// SyncDevice is implemented by destinations that can flush written data to
// stable storage. The Writer syncs after each segment when available.
type SyncDevice interface {
	Device
	Sync() error
}

var _ SyncDevice = (*os.File)(nil)
