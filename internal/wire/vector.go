package wire

import "fmt"

// InsertRequest is the decoded INSERT payload: [id:uint64, [f32, …]].
type InsertRequest struct {
	ID     uint64
	Vector []float32
}

// EncodeInsert encodes an INSERT payload.
func EncodeInsert(req InsertRequest) ([]byte, error) {
	return marshal([]any{req.ID, req.Vector})
}

// DecodeInsert decodes an INSERT payload.
func DecodeInsert(payload []byte) (InsertRequest, error) {
	arr, err := decodeArray(payload, 2)
	if err != nil {
		return InsertRequest{}, err
	}
	id, err := asUint64(arr[0])
	if err != nil {
		return InsertRequest{}, err
	}
	vec, err := decodeVector(arr[1])
	if err != nil {
		return InsertRequest{}, err
	}
	return InsertRequest{ID: id, Vector: vec}, nil
}

// DeleteRequest is the decoded DELETE payload: [id:uint64].
type DeleteRequest struct {
	ID uint64
}

// EncodeDelete encodes a DELETE payload.
func EncodeDelete(req DeleteRequest) ([]byte, error) {
	return marshal([]any{req.ID})
}

// DecodeDelete decodes a DELETE payload.
func DecodeDelete(payload []byte) (DeleteRequest, error) {
	arr, err := decodeArray(payload, 1)
	if err != nil {
		return DeleteRequest{}, err
	}
	id, err := asUint64(arr[0])
	if err != nil {
		return DeleteRequest{}, err
	}
	return DeleteRequest{ID: id}, nil
}

// SearchRequest is the decoded SEARCH payload: [[f32, …], n:uint].
type SearchRequest struct {
	Vector []float32
	N      int
}

// EncodeSearch encodes a SEARCH payload.
func EncodeSearch(req SearchRequest) ([]byte, error) {
	return marshal([]any{req.Vector, uint64(req.N)})
}

// DecodeSearch decodes a SEARCH payload.
func DecodeSearch(payload []byte) (SearchRequest, error) {
	arr, err := decodeArray(payload, 2)
	if err != nil {
		return SearchRequest{}, err
	}
	vec, err := decodeVector(arr[0])
	if err != nil {
		return SearchRequest{}, err
	}
	n, err := asUint(arr[1])
	if err != nil {
		return SearchRequest{}, err
	}
	return SearchRequest{Vector: vec, N: n}, nil
}

// Match is one element of a MATCH_RESULT payload.
type Match struct {
	ID       uint64
	Distance float32
}

// EncodeMatchResult encodes a MATCH_RESULT payload:
// [[id:uint64, distance:f32], …].
func EncodeMatchResult(matches []Match) ([]byte, error) {
	rows := make([]any, len(matches))
	for i, m := range matches {
		rows[i] = []any{m.ID, m.Distance}
	}
	return marshal(rows)
}

// DecodeMatchResult decodes a MATCH_RESULT payload.
func DecodeMatchResult(payload []byte) ([]Match, error) {
	v, err := unmarshalAny(payload)
	if err != nil {
		return nil, err
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformed)
	}
	matches := make([]Match, len(rows))
	for i, row := range rows {
		pair, err := asArray(row)
		if err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: match row has %d elements, want 2", ErrMalformed, len(pair))
		}
		id, err := asUint64(pair[0])
		if err != nil {
			return nil, err
		}
		dist, err := asFloat32(pair[1])
		if err != nil {
			return nil, err
		}
		matches[i] = Match{ID: id, Distance: dist}
	}
	return matches, nil
}

// decodeVector decodes a nested CBOR array of floats into a []float32,
// down-converting any binary64 elements.
func decodeVector(v any) ([]float32, error) {
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, len(arr))
	for i, e := range arr {
		f, err := asFloat32(e)
		if err != nil {
			return nil, err
		}
		vec[i] = f
	}
	return vec, nil
}
