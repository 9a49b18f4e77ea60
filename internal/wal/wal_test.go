package wal

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor-base/victordb/internal/frame"
)

func appendRecord(t *testing.T, w *WAL, msgType byte, payload []byte) {
	t.Helper()
	buf := frame.NewBuffer()
	require.NoError(t, buf.SetPayload(msgType, payload))
	require.NoError(t, w.Append(buf.Raw()))
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.iwal")

	w, err := Open(path)
	require.NoError(t, err)

	appendRecord(t, w, 1, []byte("first"))
	appendRecord(t, w, 3, []byte("second"))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf.Type())
	assert.Equal(t, []byte("first"), buf.Payload())

	buf, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(3), buf.Type())
	assert.Equal(t, []byte("second"), buf.Payload())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenReaderMissingFileIsEmptyWAL(t *testing.T) {
	dir := t.TempDir()
	r, err := OpenReader(filepath.Join(dir, "missing.wal"))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTruncatedTailIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.iwal")

	w, err := Open(path)
	require.NoError(t, err)
	appendRecord(t, w, 1, []byte("whole"))
	require.NoError(t, w.Close())

	// Simulate a crash mid-write of a second record: append a header
	// that claims more payload than follows it.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x30, 0x00, 0x00, 0x05}) // type=3, len=5
	require.NoError(t, err)
	_, err = f.Write([]byte("ab")) // only 2 of 5 payload bytes
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("whole"), buf.Payload())

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestResetTruncatesToEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.iwal")

	w, err := Open(path)
	require.NoError(t, err)
	appendRecord(t, w, 1, []byte("stale"))
	require.NoError(t, w.Reset())
	appendRecord(t, w, 2, []byte("fresh"))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, byte(2), buf.Type())
	assert.Equal(t, []byte("fresh"), buf.Payload())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestAppendZeroLengthPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.twal")

	w, err := Open(path)
	require.NoError(t, err)
	appendRecord(t, w, 12, nil)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	buf, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Len())
}
