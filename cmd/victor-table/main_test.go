package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor-base/victordb/internal/engine"
	"github.com/victor-base/victordb/internal/kvtable"
	"github.com/victor-base/victordb/internal/wire"
)

func TestTableDispatchPutGetDel(t *testing.T) {
	table := kvtable.New()
	dispatch := tableDispatch(table)

	putPayload, err := wire.EncodePut(wire.PutRequest{Key: []byte("k"), Value: []byte("v")})
	require.NoError(t, err)
	replyType, replyPayload, err := dispatch[wire.Put].Func(putPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResult, replyType)
	res, err := wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)

	getPayload, err := wire.EncodeKeyRequest(wire.KeyRequest{Key: []byte("k")})
	require.NoError(t, err)
	replyType, replyPayload, err = dispatch[wire.Get].Func(getPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.GetResult, replyType)
	value, found, err := wire.DecodeGetResult(replyPayload)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)

	delPayload, err := wire.EncodeKeyRequest(wire.KeyRequest{Key: []byte("k")})
	require.NoError(t, err)
	replyType, replyPayload, err = dispatch[wire.Del].Func(delPayload)
	require.NoError(t, err)
	assert.Equal(t, wire.OpResult, replyType)
	res, err = wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)

	_, _, err = dispatch[wire.Get].Func(getPayload)
	require.Error(t, err)
	var opErr *engine.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, engine.CodeNotFound, opErr.Code)
}

func TestTableDispatchDelAbsentKeyIsNoop(t *testing.T) {
	table := kvtable.New()
	dispatch := tableDispatch(table)

	payload, err := wire.EncodeKeyRequest(wire.KeyRequest{Key: []byte("missing")})
	require.NoError(t, err)
	_, replyPayload, err := dispatch[wire.Del].Func(payload)
	require.NoError(t, err)
	res, err := wire.DecodeResult(replyPayload)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)
}

func TestTableDispatchMalformedPayloadIsProtocolErrorNotOpError(t *testing.T) {
	table := kvtable.New()
	dispatch := tableDispatch(table)

	malformed := []byte{0xff} // not a valid CBOR array

	_, _, err := dispatch[wire.Put].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)
	var opErr *engine.OpError
	assert.False(t, errors.As(err, &opErr), "a decode failure must not be an *OpError, or Dispatch would send an ERROR reply instead of closing the connection")

	_, _, err = dispatch[wire.Get].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)

	_, _, err = dispatch[wire.Del].Func(malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrProtocol)
}

func TestTableDispatchEntriesHaveCorrectMutatingAndCounterMetadata(t *testing.T) {
	table := kvtable.New()
	dispatch := tableDispatch(table)

	assert.True(t, dispatch[wire.Put].Mutating)
	assert.Equal(t, engine.CounterAdd, dispatch[wire.Put].Counter)
	assert.True(t, dispatch[wire.Del].Mutating)
	assert.Equal(t, engine.CounterDel, dispatch[wire.Del].Counter)
	assert.False(t, dispatch[wire.Get].Mutating)
}
