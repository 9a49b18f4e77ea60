package wire

import "fmt"

// PutRequest is the decoded PUT payload: [key:bytes, value:bytes].
type PutRequest struct {
	Key   []byte
	Value []byte
}

// EncodePut encodes a PUT payload.
func EncodePut(req PutRequest) ([]byte, error) {
	return marshal([]any{req.Key, req.Value})
}

// DecodePut decodes a PUT payload. A zero-length key is rejected.
func DecodePut(payload []byte) (PutRequest, error) {
	arr, err := decodeArray(payload, 2)
	if err != nil {
		return PutRequest{}, err
	}
	key, err := asBytes(arr[0])
	if err != nil {
		return PutRequest{}, err
	}
	if len(key) == 0 {
		return PutRequest{}, fmt.Errorf("%w: empty key", ErrMalformed)
	}
	val, err := asBytes(arr[1])
	if err != nil {
		return PutRequest{}, err
	}
	return PutRequest{Key: key, Value: val}, nil
}

// KeyRequest is the decoded GET or DEL payload: [key:bytes].
type KeyRequest struct {
	Key []byte
}

// EncodeKeyRequest encodes a GET or DEL payload.
func EncodeKeyRequest(req KeyRequest) ([]byte, error) {
	return marshal([]any{req.Key})
}

// DecodeKeyRequest decodes a GET or DEL payload. A zero-length key is
// rejected.
func DecodeKeyRequest(payload []byte) (KeyRequest, error) {
	arr, err := decodeArray(payload, 1)
	if err != nil {
		return KeyRequest{}, err
	}
	key, err := asBytes(arr[0])
	if err != nil {
		return KeyRequest{}, err
	}
	if len(key) == 0 {
		return KeyRequest{}, fmt.Errorf("%w: empty key", ErrMalformed)
	}
	return KeyRequest{Key: key}, nil
}

// EncodeGetResult encodes a GET_RESULT payload: [value:bytes]. An empty
// byte string is the canonical "key not found" signal on the wire, and a
// nil value is encoded as that empty byte string. The table server's GET
// handler (cmd/victor-table) replies with ERROR on a miss instead, so it
// only calls EncodeGetResult with a found value.
func EncodeGetResult(value []byte) ([]byte, error) {
	if value == nil {
		value = []byte{}
	}
	return marshal([]any{value})
}

// DecodeGetResult decodes a GET_RESULT payload. A zero-length byte
// string decodes to (nil, false), meaning not found.
func DecodeGetResult(payload []byte) (value []byte, found bool, err error) {
	arr, err := decodeArray(payload, 1)
	if err != nil {
		return nil, false, err
	}
	v, err := asBytes(arr[0])
	if err != nil {
		return nil, false, err
	}
	if len(v) == 0 {
		return nil, false, nil
	}
	return v, true, nil
}
