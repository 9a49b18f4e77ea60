// Package wal implements the write-ahead log shared by both VictorDB
// engines. Every mutating request is appended as its exact wire frame
// (header and payload unchanged) before the client sees a result, and
// replayed through the same dispatcher as live traffic on startup.
package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/victor-base/victordb/internal/frame"
)

// MaxRecordSize bounds a single append to the largest frame the wire
// format can express, guarding against a caller accidentally handing
// Append something that isn't a frame at all.
const MaxRecordSize = frame.HeaderSize + frame.MaxLen

// ErrCorrupt is returned by Next when a record's header is out of range
// or its declared payload is impossibly large for the remaining file:
// a different failure mode than a clean end-of-log or an I/O error.
var ErrCorrupt = errors.New("wal: corrupt record")

// WAL is an append-only sequence of frame-format records backed by a
// single file opened in append mode. One goroutine may append at a
// time; callers serialize their own access (internal/engine's Runner
// already holds a dispatch-wide lock across append+apply).
type WAL struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open opens or creates the WAL file at path for appending.
func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WAL{path: path, f: f}, nil
}

// Append writes one record: the exact wire-frame bytes (header
// immediately followed by payload), unchanged. A successful Append
// only guarantees the bytes reached the OS; callers that need
// durability beyond a crash of the process itself should Sync.
func (w *WAL) Append(frameBytes []byte) error {
	if len(frameBytes) > MaxRecordSize {
		return fmt.Errorf("wal: record of %d bytes exceeds max frame size", len(frameBytes))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.f.Write(frameBytes)
	return err
}

// Sync flushes the WAL file to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Sync()
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Reset truncates the WAL to empty, used after a successful snapshot
// export makes the log's entries redundant. The file is reopened so
// the append offset restarts at zero.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Close(); err != nil {
		return err
	}
	if err := os.Truncate(w.path, 0); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	w.f = f
	return nil
}

// Reader iterates the records of a WAL file from the beginning, for
// startup replay. It is independent of WAL so replay can run against a
// read-only *os.File opened separately from the live append handle.
type Reader struct {
	f   *os.File
	buf *frame.Buffer
}

// OpenReader opens path for sequential record iteration. A missing file
// is treated as an empty WAL: callers get io.EOF from the first Next.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Reader{f: nil, buf: frame.NewBuffer()}, nil
		}
		return nil, fmt.Errorf("wal: open reader %s: %w", path, err)
	}
	return &Reader{f: f, buf: frame.NewBuffer()}, nil
}

// Next reads the next record into an internal buffer and returns it.
// The returned Buffer is only valid until the next call to Next.
//
// Three outcomes:
//   - io.EOF: no more records, a clean end of the log.
//   - ErrCorrupt: the next record's header or payload is truncated or
//     out of range. This marks the last, presumably torn write from a
//     prior crash; the caller should stop replay here and treat
//     everything read so far as valid, not abort the whole load.
//   - any other error: an I/O failure distinct from corruption.
func (r *Reader) Next() (*frame.Buffer, error) {
	if r.f == nil {
		return nil, io.EOF
	}
	err := frame.ReadFrame(r.f, r.buf)
	switch {
	case err == nil:
		return r.buf, nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	case errors.Is(err, frame.ErrShortRead):
		return nil, ErrCorrupt
	case errors.Is(err, frame.ErrHeaderRange):
		return nil, ErrCorrupt
	default:
		return nil, err
	}
}

// Close releases the reader's file handle. Safe to call on a reader for
// a WAL file that did not exist.
func (r *Reader) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}
