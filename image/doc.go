// Package image implements the nImage container model, the builder that
// assembles containers from named payloads, and the reader that parses and
// verifies serialized containers.
//
// # Container layout
//
// A container is a single byte stream: a fixed 96-byte header, a table of
// fixed 64-byte segment entries, then the segment payloads packed in offset
// order on 4-byte alignment. The header checksum covers the header and the
// whole table (checksum field zeroed); each segment checksum covers that
// segment's stored bytes, so corruption is detectable without decompression.
//
// # Lifecycle
//
// The Builder accumulates inputs in memory, lays out and checksums the
// container, and serializes it exactly once per Build call; the output is
// deterministic for the same inputs and options regardless of the worker
// count used for compression. A serialized container is never mutated in
// place; any change means rebuilding.
//
// The Reader produces a read-only view of a serialized container. In strict
// mode (the default, and the only mode the flashing path accepts) any
// checksum mismatch fails Open. In report mode all mismatches are collected
// and intact segments remain extractable, which is meant for forensics on a
// damaged image rather than production flashing.
package image
