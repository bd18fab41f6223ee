package record

import (
	"bytes"
	"errors"

	"github.com/tuannm99/recsql/internal/alias/bx"
)

// ---- Errors ----
var (
	ErrBadBuffer       = errors.New("arraycodec: buffer underflow/overflow")
	ErrUnsupportedType = errors.New("arraycodec: unsupported type")
)

// arrayMagic prefixes every encoded array so that materialization can tell
// array blobs apart from ordinary BLOB values.
var arrayMagic = []byte("RSQA")

type arrayKind uint8

const (
	kindNull arrayKind = iota
	kindFloat64s
	kindInt64s
	kindStrings
	kindTuple
	kindFloat64
	kindInt64
	kindString
)

// IsArray reports whether b looks like an EncodeArray output.
func IsArray(b []byte) bool {
	return len(b) >= len(arrayMagic)+1 && bytes.HasPrefix(b, arrayMagic)
}

// IsArrayValue reports whether v is a Go value the array codec can store.
func IsArrayValue(v any) bool {
	switch v.(type) {
	case []float64, []float32, []int64, []int, []int32, []string, []any:
		return true
	}
	return false
}

// ---- EncodeArray(v) -> []byte ----
// Format:
// "RSQA" | value
// value := kind(u8) payload
//   Float64s/Int64s: u32 count (LE) + count * 8 bytes
//   Strings:         u32 count + count * (u32 len + data)
//   Tuple:           u32 count + count * value
//   Float64/Int64:   8 bytes
//   String:          u32 len + data
//   Null:            nothing
func EncodeArray(v any) ([]byte, error) {
	out := append([]byte(nil), arrayMagic...)
	return appendValue(out, v)
}

func appendValue(out []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(out, byte(kindNull)), nil

	case []float64:
		out = append(out, byte(kindFloat64s))
		out = bx.AppendU32(out, uint32(len(x)))
		for _, f := range x {
			out = bx.AppendF64(out, f)
		}
		return out, nil

	case []float32:
		fs := make([]float64, len(x))
		for i, f := range x {
			fs[i] = float64(f)
		}
		return appendValue(out, fs)

	case []int64:
		out = append(out, byte(kindInt64s))
		out = bx.AppendU32(out, uint32(len(x)))
		for _, n := range x {
			out = bx.AppendU64(out, uint64(n))
		}
		return out, nil

	case []int:
		ns := make([]int64, len(x))
		for i, n := range x {
			ns[i] = int64(n)
		}
		return appendValue(out, ns)

	case []int32:
		ns := make([]int64, len(x))
		for i, n := range x {
			ns[i] = int64(n)
		}
		return appendValue(out, ns)

	case []string:
		out = append(out, byte(kindStrings))
		out = bx.AppendU32(out, uint32(len(x)))
		for _, s := range x {
			out = bx.AppendStr(out, s)
		}
		return out, nil

	case []any:
		out = append(out, byte(kindTuple))
		out = bx.AppendU32(out, uint32(len(x)))
		var err error
		for _, e := range x {
			if out, err = appendValue(out, e); err != nil {
				return nil, err
			}
		}
		return out, nil

	case string:
		out = append(out, byte(kindString))
		return bx.AppendStr(out, x), nil

	case bool:
		if x {
			return appendValue(out, int64(1))
		}
		return appendValue(out, int64(0))

	default:
		if n, ok := asInt64(v); ok {
			out = append(out, byte(kindInt64))
			return bx.AppendU64(out, uint64(n)), nil
		}
		if f, ok := asFloat64(v); ok {
			out = append(out, byte(kindFloat64))
			return bx.AppendF64(out, f), nil
		}
		return nil, ErrUnsupportedType
	}
}

// ---- DecodeArray(buf) -> any ----
// Returns []float64, []int64, []string or []any (tuple) for container
// values; tuple elements may also be nil, int64, float64 or string.
func DecodeArray(buf []byte) (any, error) {
	if !IsArray(buf) {
		return nil, ErrBadBuffer
	}
	v, n, err := readValue(buf, len(arrayMagic))
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return nil, ErrBadBuffer
	}
	return v, nil
}

func readValue(buf []byte, i int) (any, int, error) {
	if i >= len(buf) {
		return nil, i, ErrBadBuffer
	}
	kind := arrayKind(buf[i])
	i++

	switch kind {
	case kindNull:
		return nil, i, nil

	case kindFloat64, kindInt64:
		if i+8 > len(buf) {
			return nil, i, ErrBadBuffer
		}
		if kind == kindInt64 {
			return int64(bx.U64At(buf, i)), i + 8, nil
		}
		return bx.F64At(buf, i), i + 8, nil

	case kindString:
		s, next, err := readString(buf, i)
		return s, next, err
	}

	// containers
	if i+4 > len(buf) {
		return nil, i, ErrBadBuffer
	}
	count := int(bx.U32At(buf, i))
	i += 4

	switch kind {
	case kindFloat64s:
		if count > (len(buf)-i)/8 {
			return nil, i, ErrBadBuffer
		}
		out := make([]float64, count)
		for k := range out {
			out[k] = bx.F64At(buf, i)
			i += 8
		}
		return out, i, nil

	case kindInt64s:
		if count > (len(buf)-i)/8 {
			return nil, i, ErrBadBuffer
		}
		out := make([]int64, count)
		for k := range out {
			out[k] = int64(bx.U64At(buf, i))
			i += 8
		}
		return out, i, nil

	case kindStrings:
		if count > (len(buf)-i)/4 {
			return nil, i, ErrBadBuffer
		}
		out := make([]string, count)
		for k := range out {
			s, next, err := readString(buf, i)
			if err != nil {
				return nil, i, err
			}
			out[k] = s
			i = next
		}
		return out, i, nil

	case kindTuple:
		if count > len(buf)-i {
			return nil, i, ErrBadBuffer
		}
		out := make([]any, count)
		for k := range out {
			v, next, err := readValue(buf, i)
			if err != nil {
				return nil, i, err
			}
			out[k] = v
			i = next
		}
		return out, i, nil

	default:
		return nil, i, ErrUnsupportedType
	}
}

func readString(buf []byte, i int) (string, int, error) {
	if i+4 > len(buf) {
		return "", i, ErrBadBuffer
	}
	l := int(bx.U32At(buf, i))
	i += 4
	if l > len(buf)-i {
		return "", i, ErrBadBuffer
	}
	return string(buf[i : i+l]), i + l, nil
}
