// Package wire implements the CBOR payload codec: one encode/decode pair
// per VictorDB message type.
package wire

// Message types. Vector engine and KV engine share one type space so a
// single frame header can carry either; ERROR is shared by both engines.
//
// PutResult and DelResult are the legacy typed-result numbers from
// src/protocol.h; every KV mutation now replies with the generic
// OpResult instead, so PutResult/DelResult are never produced by this
// implementation (kept only as documentation of the wire history).
const (
	Insert       byte = 1
	InsertResult byte = 2
	Delete       byte = 3
	DeleteResult byte = 4
	Search       byte = 5
	MatchResult  byte = 6
	Error        byte = 7
	Put          byte = 8
	PutResult    byte = 9
	Get          byte = 10
	GetResult    byte = 11
	Del          byte = 12
	DelResult    byte = 13
	OpResult     byte = 14
)
