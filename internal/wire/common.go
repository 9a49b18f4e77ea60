package wire

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformed wraps every structural decode failure (wrong top-level
// type, wrong arity, wrong element kind, oversize length). Decoders
// only assign to their return values after every check has passed, so
// a malformed payload never mutates caller outputs.
var ErrMalformed = fmt.Errorf("wire: malformed payload")

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.EncOptions{
		// Preserve an encoded float32 exactly; a "shortest float" mode
		// would let the encoder narrow it to a CBOR half-float, silently
		// changing the wire encoding of every vector.
		ShortestFloat: cbor.ShortestFloatNone,
		Sort:          cbor.SortNone,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: invalid cbor encode options: %v", err))
	}
	return mode
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// unmarshalAny decodes an arbitrary CBOR value.
func unmarshalAny(payload []byte) (any, error) {
	var v any
	if err := cbor.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

// decodeArray decodes a CBOR top-level array and checks it has exactly
// n elements, returning a malformed-payload error otherwise.
func decodeArray(payload []byte, n int) ([]any, error) {
	v, err := unmarshalAny(payload)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrMalformed)
	}
	if len(arr) != n {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrMalformed, n, len(arr))
	}
	return arr, nil
}

// asUint64 accepts any CBOR unsigned-integer width decoded by the
// library (cbor.Unmarshal always normalizes these to uint64 or int64
// when the destination is `any`).
func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("%w: negative integer where uint64 expected", ErrMalformed)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected unsigned integer, got %T", ErrMalformed, v)
	}
}

// asUint accepts a CBOR unsigned integer and range-checks it into an int,
// used for the SEARCH result-count field.
func asUint(v any) (int, error) {
	n, err := asUint64(v)
	if err != nil {
		return 0, err
	}
	if n > 1<<31 {
		return 0, fmt.Errorf("%w: count out of range", ErrMalformed)
	}
	return int(n), nil
}

// asBytes accepts a CBOR byte string.
func asBytes(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: expected byte string, got %T", ErrMalformed, v)
	}
	return b, nil
}

// asFloat32 accepts a CBOR binary32 or binary64 float and down-converts
// binary64 to binary32. The cbor library decodes both widths into Go
// float64 when the destination is `any`, so no explicit major-type
// sniffing is needed: both encodings collapse onto this one path.
func asFloat32(v any) (float32, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: expected floating point, got %T", ErrMalformed, v)
	}
	return float32(f), nil
}

// asArray accepts a nested CBOR array.
func asArray(v any) ([]any, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %T", ErrMalformed, v)
	}
	return arr, nil
}

// Result is the shared OP_RESULT/ERROR payload shape: [code:uint32, message:text].
type Result struct {
	Code    uint32
	Message string
}

// EncodeResult encodes a Result as CBOR.
func EncodeResult(r Result) ([]byte, error) {
	return marshal([]any{uint64(r.Code), r.Message})
}

// DecodeResult decodes a Result from CBOR.
func DecodeResult(payload []byte) (Result, error) {
	arr, err := decodeArray(payload, 2)
	if err != nil {
		return Result{}, err
	}
	code, err := asUint64(arr[0])
	if err != nil {
		return Result{}, err
	}
	if code > math.MaxUint32 {
		return Result{}, fmt.Errorf("%w: code out of range", ErrMalformed)
	}
	msg, ok := arr[1].(string)
	if !ok {
		return Result{}, fmt.Errorf("%w: expected text string for message, got %T", ErrMalformed, arr[1])
	}
	return Result{Code: uint32(code), Message: msg}, nil
}
