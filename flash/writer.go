package flash

import (
	"context"
	"fmt"
	"time"

	"github.com/nimage-project/nimage/checksum"
	"github.com/nimage-project/nimage/errs"
	"github.com/nimage-project/nimage/image"
	"github.com/nimage-project/nimage/internal/logger"
	"github.com/nimage-project/nimage/internal/options"
	"github.com/nimage-project/nimage/internal/pool"
)

const (
	// DefaultMaxAttempts is the per-segment write attempt bound.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the delay before the first retry; it doubles on
	// each subsequent attempt.
	DefaultBackoff = 200 * time.Millisecond
)

// Writer streams a verified container's segments to their planned device
// regions, one segment at a time, in plan order.
//
// Policy, in order of application:
//   - the container must have fully passed strict verification
//   - every payload must fit its planned region before any byte is written
//   - segments are written strictly sequentially in plan order
//   - each segment write is followed by a read-back checksum (unless
//     disabled), retried with exponential backoff up to the attempt bound
//   - the first segment that exhausts its retries aborts the remaining
//     sequence; a partially flashed device is reported, never papered over
//
// A Writer is single-use per device: it assumes exclusive ownership of the
// destination for the duration of WriteImage.
type Writer struct {
	dev  Device
	plan *Plan

	maxAttempts int
	backoff     time.Duration
	readBack    bool
	log         logger.Logger
}

// WriterOption configures a Writer.
type WriterOption = options.Option[*Writer]

// WithMaxAttempts bounds write attempts per segment.
func WithMaxAttempts(n int) WriterOption {
	return options.New(func(w *Writer) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be at least 1, got %d", n)
		}
		w.maxAttempts = n

		return nil
	})
}

// WithBackoff sets the delay before the first retry. The delay doubles on
// each further attempt.
func WithBackoff(d time.Duration) WriterOption {
	return options.New(func(w *Writer) error {
		if d < 0 {
			return fmt.Errorf("backoff must not be negative, got %v", d)
		}
		w.backoff = d

		return nil
	})
}

// WithoutReadBack disables post-write read-back verification. Only for
// destinations where reads are impossible or meaningless (e.g. write-only
// pipe targets in tests); flashing real media should keep read-back on.
func WithoutReadBack() WriterOption {
	return options.NoError(func(w *Writer) {
		w.readBack = false
	})
}

// WithLogger sets the logger for transfer progress events.
func WithLogger(log logger.Logger) WriterOption {
	return options.NoError(func(w *Writer) {
		w.log = log
	})
}

// NewWriter creates a Writer for one device and plan.
func NewWriter(dev Device, plan *Plan, opts ...WriterOption) (*Writer, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{
		dev:         dev,
		plan:        plan,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		readBack:    true,
		log:         logger.Discard(),
	}
	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	return w, nil
}

// WriteImage writes every planned segment of r to the device.
//
// The context is checked between segments only; a segment write is atomic
// at segment granularity, either fully written and verified or reported
// failed. On failure the device may hold a mix of old and new firmware;
// the returned error says which segment died and nothing after it was
// touched.
func (w *Writer) WriteImage(ctx context.Context, r *image.Reader) error {
	if r.Mode() != image.VerifyStrict || !r.FullyVerified() {
		return errs.Formatf(errs.ErrVerifyBeforeWrite,
			"refusing to flash: container was not strictly verified")
	}

	// Resolve and bounds-check every planned segment before the first
	// write. A plan that cannot complete should fail while the device is
	// still untouched.
	type job struct {
		region  Region
		payload []byte
	}
	jobs := make([]job, 0, len(w.plan.Regions))
	for _, region := range w.plan.Regions {
		payload, err := r.Segment(region.Role)
		if err != nil {
			return err
		}
		if uint64(len(payload)) > region.Length {
			return errs.Formatf(errs.ErrRegionTooSmall,
				"%s payload is %d bytes, region holds %d", region.Role, len(payload), region.Length)
		}
		jobs = append(jobs, job{region: region, payload: payload})
	}

	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.log.Info("writing segment",
			"role", j.region.Role.String(),
			"offset", j.region.Offset,
			"size", len(j.payload))

		if err := w.writeSegment(j.region, j.payload); err != nil {
			w.log.Error("segment write failed, aborting remaining sequence",
				"role", j.region.Role.String(), "error", err)

			return err
		}
	}

	return nil
}

// writeSegment writes one payload with retry and read-back verification.
func (w *Writer) writeSegment(region Region, payload []byte) error {
	want := checksum.Sum64(payload)

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := w.backoff << (attempt - 2)
			w.log.Warn("retrying segment write",
				"role", region.Role.String(), "attempt", attempt, "backoff", delay)
			time.Sleep(delay)
		}

		lastErr = w.writeOnce(region, payload, want)
		if lastErr == nil {
			return nil
		}
	}

	return &errs.WriteError{Role: region.Role, Attempts: w.maxAttempts, Err: lastErr}
}

func (w *Writer) writeOnce(region Region, payload []byte, want uint64) error {
	// Copy block-wise so a transient media error surfaces with a bounded
	// amount of unflushed data, mirroring how much a retry has to redo.
	for off := 0; off < len(payload); off += pool.TransferBlockSize {
		end := off + pool.TransferBlockSize
		if end > len(payload) {
			end = len(payload)
		}

		n, err := w.dev.WriteAt(payload[off:end], int64(region.Offset)+int64(off))
		if err != nil {
			return fmt.Errorf("write at device offset %d: %w", region.Offset+uint64(off), err)
		}
		if n != end-off {
			return errs.Formatf(errs.ErrWriteShort, "wrote %d of %d bytes", n, end-off)
		}
	}

	if sd, ok := w.dev.(SyncDevice); ok {
		if err := sd.Sync(); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}

	if !w.readBack {
		return nil
	}

	return w.verifyRegion(region, len(payload), want)
}

// verifyRegion reads the just-written range back and compares its checksum
// against the payload's, catching write-path corruption on transient media.
func (w *Writer) verifyRegion(region Region, length int, want uint64) error {
	buf := pool.GetTransferBuffer()
	defer pool.PutTransferBuffer(buf)
	buf.Grow(pool.TransferBlockSize)
	buf.SetLength(pool.TransferBlockSize)

	digest := checksum.NewDigest()
	for off := 0; off < length; off += pool.TransferBlockSize {
		end := off + pool.TransferBlockSize
		if end > length {
			end = length
		}
		block := buf.Bytes()[:end-off]

		if _, err := w.dev.ReadAt(block, int64(region.Offset)+int64(off)); err != nil {
			return fmt.Errorf("read-back at device offset %d: %w", region.Offset+uint64(off), err)
		}
		_, _ = digest.Write(block)
	}

	if got := digest.Sum64(); got != want {
		return errs.Formatf(errs.ErrReadBackMismatch,
			"expected 0x%016x, read back 0x%016x", want, got)
	}

	return nil
}
