package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor-base/victordb/internal/engine"
	"github.com/victor-base/victordb/internal/vectorindex"
	"github.com/victor-base/victordb/internal/wire"
)

func TestVectorTableInsertSearchDelete(t *testing.T) {
	index, err := vectorindex.New(vectorindex.Flat, vectorindex.Cosine, 2)
	require.NoError(t, err)
	table := vectorTable(index)

	insertPayload, err := wire.EncodeInsert(wire.InsertRequest{ID: 1, Vector: []float32{1, 0}})
	require.NoError(t, err)
	replyType, replyPayload, err := table[wire.Insert].Func(insertPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.InsertResult, replyType)
	res, err := wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)

	searchPayload, err := wire.EncodeSearch(wire.SearchRequest{Vector: []float32{1, 0}, N: 1})
	require.NoError(t, err)
	replyType, replyPayload, err = table[wire.Search].Func(searchPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.MatchResult, replyType)
	matches, err := wire.DecodeMatchResult(replyPayload)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, uint64(1), matches[0].ID)

	deletePayload, err := wire.EncodeDelete(wire.DeleteRequest{ID: 1})
	require.NoError(t, err)
	replyType, replyPayload, err = table[wire.Delete].Func(deletePayload)
	require.NoError(t, err)
	assert.Equal(t, wire.DeleteResult, replyType)
	res, err = wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)
}

func TestVectorTableDeleteAbsentIsNoop(t *testing.T) {
	index, err := vectorindex.New(vectorindex.Flat, vectorindex.Cosine, 2)
	require.NoError(t, err)
	table := vectorTable(index)

	payload, err := wire.EncodeDelete(wire.DeleteRequest{ID: 99})
	require.NoError(t, err)
	_, replyPayload, err := table[wire.Delete].Func(payload)
	require.NoError(t, err)
	res, err := wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)
}

func TestVectorTableInsertDimensionMismatchIsBadVectorError(t *testing.T) {
	index, err := vectorindex.New(vectorindex.Flat, vectorindex.Cosine, 3)
	require.NoError(t, err)
	table := vectorTable(index)

	payload, err := wire.EncodeInsert(wire.InsertRequest{ID: 1, Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, _, err = table[wire.Insert].Func(payload)
	require.Error(t, err)

	var opErr *engine.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, engine.CodeBadVector, opErr.Code)
}

func TestVectorTableMalformedPayloadIsProtocolErrorNotOpError(t *testing.T) {
	index, err := vectorindex.New(vectorindex.Flat, vectorindex.Cosine, 2)
	require.NoError(t, err)
	table := vectorTable(index)

	malformed := []byte{0xff} // not a valid CBOR array

	_, _, err = table[wire.Insert].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)
	var opErr *engine.OpError
	assert.False(t, errors.As(err, &opErr), "a decode failure must not be an *OpError, or Dispatch would send an ERROR reply instead of closing the connection")

	_, _, err = table[wire.Delete].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)

	_, _, err = table[wire.Search].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)
}

func TestVectorTableEntriesHaveCorrectMutatingAndCounterMetadata(t *testing.T) {
	index, err := vectorindex.New(vectorindex.Flat, vectorindex.Cosine, 2)
	require.NoError(t, err)
	table := vectorTable(index)

	assert.True(t, table[wire.Insert].Mutating)
	assert.Equal(t, engine.CounterAdd, table[wire.Insert].Counter)
	assert.True(t, table[wire.Delete].Mutating)
	assert.Equal(t, engine.CounterDel, table[wire.Delete].Counter)
	assert.False(t, table[wire.Search].Mutating)
}

func TestInsertErrMapsDimensionMismatchAndOtherErrors(t *testing.T) {
	err := insertErr(vectorindex.ErrDimensionMismatch)
	var opErr *engine.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, engine.CodeBadVector, opErr.Code)

	other := insertErr(assertNewError("boom"))
	require.ErrorAs(t, other, &opErr)
	assert.Equal(t, engine.CodeInternal, opErr.Code)
}

func assertNewError(msg string) error {
	return &genericErr{msg}
}

type genericErr struct{ msg string }

func (e *genericErr) Error() string { return e.msg }
