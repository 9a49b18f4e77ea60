// Package engine implements the generic dispatch pipeline shared by
// both VictorDB servers: decode-by-type → engine call → WAL append →
// threshold-triggered snapshot flush → reply encode. A vector-index or
// table binary supplies its own Table of per-message handlers; Runner
// supplies the WAL, snapshot, and counter bookkeeping around it so
// neither binary repeats that plumbing.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/victor-base/victordb/internal/frame"
	"github.com/victor-base/victordb/internal/wal"
	"github.com/victor-base/victordb/internal/wire"
)

// ErrUnknownType is returned by Dispatch when no handler is registered
// for the frame's message type: a protocol violation where the caller
// must not reply and must close the connection.
var ErrUnknownType = errors.New("engine: unknown message type")

// ErrProtocol marks a request payload that failed to decode: malformed
// CBOR, wrong message arity, or a field of the wrong type. An OpFunc
// wraps its decode error with ErrProtocol (fmt.Errorf("%w: ...", ErrProtocol, err))
// to tell Dispatch this is not an engine-level failure that gets an
// ERROR reply, but a protocol violation: the caller must close the
// connection without replying, the same as ErrUnknownType.
var ErrProtocol = errors.New("engine: malformed request")

// Error codes carried in ERROR/OP_RESULT payloads.
const (
	CodeInternal  uint32 = 1
	CodeNotFound  uint32 = 2
	CodeBadVector uint32 = 3
)

// OpError is returned by an OpFunc when it wants a specific code/message
// pair to reach the client, rather than the generic CodeInternal
// fallback Dispatch applies to an unadorned error.
type OpError struct {
	Code    uint32
	Message string
}

func (e *OpError) Error() string { return e.Message }

// OpFunc applies one decoded request to the underlying collaborator
// (VectorIndex or KVTable) and returns the encoded reply message type
// and payload. Decoding the request payload and encoding the reply
// payload both happen inside OpFunc, which is where internal/wire is
// used; Runner never looks inside the payload bytes.
type OpFunc func(payload []byte) (replyType byte, replyPayload []byte, err error)

// Counter selects which of the two per-engine operation counters
// (op_add/op_del) a mutating handler advances.
type Counter int

const (
	CounterNone Counter = iota
	CounterAdd
	CounterDel
)

// Entry describes one message type's handler: whether it mutates state
// (and therefore needs a WAL append and a counter), and the function
// that applies it.
type Entry struct {
	Mutating bool
	Counter  Counter
	Func     OpFunc
}

// Table is a per-engine dispatch table keyed by wire message type. One
// generic structure both binaries instantiate, instead of a pair of
// hand-written vector/KV dispatch loops.
type Table map[byte]Entry

// Runner wires a Table to a WAL and a snapshot pair, enforcing the
// load/replay/flush pipeline and a single-dispatch-at-a-time invariant
// via mu, which every Dispatch and ReplayWAL call holds for its full
// duration.
type Runner struct {
	mu sync.Mutex

	table   Table
	walPath string
	wal     *wal.WAL

	snapshotPath string
	export       func(path string) error
	importFn     func(path string) error

	threshold    int
	opAdd, opDel int

	log *slog.Logger
}

// Config collects the fixed inputs a Runner needs beyond its Table.
type Config struct {
	WAL          *wal.WAL
	WALPath      string
	SnapshotPath string
	Export       func(path string) error
	Import       func(path string) error
	Threshold    int
	Log          *slog.Logger
}

// NewRunner builds a Runner. The WAL handle in cfg must already be open
// for append; Dispatch and ReplayWAL do not open or close it.
func NewRunner(table Table, cfg Config) *Runner {
	return &Runner{
		table:        table,
		wal:          cfg.WAL,
		walPath:      cfg.WALPath,
		snapshotPath: cfg.SnapshotPath,
		export:       cfg.Export,
		importFn:     cfg.Import,
		threshold:    cfg.Threshold,
		log:          cfg.Log,
	}
}

// LoadSnapshot imports the snapshot file into the engine if it exists.
// A missing snapshot file is not an error: the engine simply starts
// empty.
func (r *Runner) LoadSnapshot() error {
	if _, err := os.Stat(r.snapshotPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("engine: stat snapshot %s: %w", r.snapshotPath, err)
	}
	if err := r.importFn(r.snapshotPath); err != nil {
		return fmt.Errorf("engine: import snapshot %s: %w", r.snapshotPath, err)
	}
	return nil
}

// ReplayWAL applies every record in the WAL file through the same
// dispatch table as live traffic, with WAL-append suppressed. Replay
// stops cleanly at end of file, and stops (without failing) at a
// corrupt tail record, accepting every record read before it: the last
// WAL record of a crashed process may be torn.
func (r *Runner) ReplayWAL() error {
	reader, err := wal.OpenReader(r.walPath)
	if err != nil {
		return fmt.Errorf("engine: open wal for replay: %w", err)
	}
	defer reader.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		buf, err := reader.Next()
		switch {
		case errors.Is(err, io.EOF):
			r.maybeFlush()
			return nil
		case errors.Is(err, wal.ErrCorrupt):
			r.log.Warn("wal replay stopped at a corrupt tail record, accepting records read so far")
			r.maybeFlush()
			return nil
		case err != nil:
			return fmt.Errorf("engine: wal replay: %w", err)
		}
		r.replayOne(buf)
	}
}

func (r *Runner) replayOne(buf *frame.Buffer) {
	entry, ok := r.table[buf.Type()]
	if !ok {
		r.log.Warn("skipping unknown message type found in wal", "type", buf.Type())
		return
	}
	if _, _, err := entry.Func(buf.Payload()); err != nil {
		r.log.Warn("wal replay: engine call failed, skipping record", "type", buf.Type(), "error", err)
		return
	}
	if entry.Mutating {
		r.bumpCounter(entry.Counter)
	}
}

// Dispatch applies one live request held in buf, overwriting buf with
// the reply frame's payload (and type) on return. ErrUnknownType and
// ErrProtocol both signal the caller (internal/netsrv) to close the
// connection without writing any reply; any other error from an OpFunc
// reaches the client as an ERROR reply instead.
func (r *Runner) Dispatch(buf *frame.Buffer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.table[buf.Type()]
	if !ok {
		return ErrUnknownType
	}

	var request []byte
	if entry.Mutating {
		// Copied before the handler runs: the handler is handed buf's
		// payload slice, and the WAL append below must receive the
		// request frame exactly as it was read.
		request = append([]byte(nil), buf.Raw()...)
	}

	replyType, replyPayload, err := entry.Func(buf.Payload())
	if err != nil {
		if errors.Is(err, ErrProtocol) {
			return err
		}
		return r.writeError(buf, err)
	}

	if entry.Mutating {
		if appendErr := r.wal.Append(request); appendErr != nil {
			r.log.Warn("wal append failed, request already acknowledged", "error", appendErr)
		}
		r.bumpCounter(entry.Counter)
		r.maybeFlush()
	}

	return buf.SetPayload(replyType, replyPayload)
}

func (r *Runner) bumpCounter(c Counter) {
	switch c {
	case CounterAdd:
		r.opAdd++
	case CounterDel:
		r.opDel++
	}
}

// writeError turns an OpFunc error into an ERROR reply in place,
// defaulting to CodeInternal for an error that isn't an *OpError.
func (r *Runner) writeError(buf *frame.Buffer, err error) error {
	code := CodeInternal
	msg := err.Error()
	var opErr *OpError
	if errors.As(err, &opErr) {
		code = opErr.Code
		msg = opErr.Message
	}
	payload, encErr := wire.EncodeResult(wire.Result{Code: code, Message: msg})
	if encErr != nil {
		// A Result{uint32,string} value must always be CBOR-encodable;
		// failure here means the wire codec itself is broken.
		panic(fmt.Sprintf("engine: cannot encode error result: %v", encErr))
	}
	return buf.SetPayload(wire.Error, payload)
}

// maybeFlush exports a snapshot and resets the WAL once the combined
// operation counters exceed the threshold. Called with mu held.
func (r *Runner) maybeFlush() {
	if r.opAdd+r.opDel <= r.threshold {
		return
	}
	if err := r.export(r.snapshotPath); err != nil {
		r.log.Warn("snapshot export failed, keeping wal intact", "error", err)
		return
	}
	if err := r.wal.Reset(); err != nil {
		r.log.Warn("wal reset after snapshot export failed", "error", err)
		return
	}
	r.opAdd = 0
	r.opDel = 0
}
