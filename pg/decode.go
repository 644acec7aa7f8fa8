package pg

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// pgEpoch is the zero point date/timestamp columns are encoded relative to,
// per spec.md §4.5 ("Postgres epoch 2000-01-01").
var pgEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// DecodeBool decodes a 1-byte boolean column.
func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, fmt.Errorf("pg: bool column must be 1 byte, got %d", len(b))
	}
	return b[0] != 0, nil
}

// DecodeI16/I32/I64 decode fixed-width big-endian signed integers.
func DecodeI16(b []byte) (int16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("pg: int2 column must be 2 bytes, got %d", len(b))
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func DecodeI32(b []byte) (int32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("pg: int4 column must be 4 bytes, got %d", len(b))
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func DecodeI64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("pg: int8 column must be 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// DecodeU8/U16/U32/U64 decode an unsigned value that was encoded as a
// signed column of the same width, rejecting the high bit per spec.md §4.5
// ("unsigned encoded as signed of the same width, rejecting the high bit to
// avoid ambiguity") rather than silently reinterpreting negative values as
// large unsigned ones. DecodeU8 is the one exception: Postgres has no 1-byte
// integer column, so it reads int2 and range-checks the value to 0..255.
func DecodeU8(b []byte) (uint8, error) {
	v, err := DecodeI16(b) // Postgres has no 1-byte integer column; u8 rides int2
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint8 {
		return 0, fmt.Errorf("pg: value %d out of range for u8", v)
	}
	return uint8(v), nil
}

func DecodeU16(b []byte) (uint16, error) {
	v, err := DecodeI16(b)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("pg: int2 column %d has its high bit set, ambiguous as u16", v)
	}
	return uint16(v), nil
}

func DecodeU32(b []byte) (uint32, error) {
	v, err := DecodeI32(b)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("pg: int4 column %d has its high bit set, ambiguous as u32", v)
	}
	return uint32(v), nil
}

// DecodeU64 decodes a signed int8 column whose high bit must be clear; a set
// high bit would be ambiguous between "large unsigned value" and "negative
// signed value" and is rejected outright, matching spec.md §4.5.
func DecodeU64(b []byte) (uint64, error) {
	v, err := DecodeI64(b)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("pg: int8 column %d has its high bit set, ambiguous as u64", v)
	}
	return uint64(v), nil
}

func DecodeF32(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("pg: float4 column must be 4 bytes, got %d", len(b))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

func DecodeF64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("pg: float8 column must be 8 bytes, got %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// DecodeText validates b as UTF-8 and returns it as a string, per spec.md
// §4.5 ("text ... valid UTF-8 required").
func DecodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("pg: text column is not valid UTF-8")
	}
	return string(b), nil
}

// DecodeBytea returns the raw column bytes unmodified.
func DecodeBytea(b []byte) []byte { return append([]byte(nil), b...) }

// DecodeDate decodes a 4-byte day count relative to pgEpoch.
func DecodeDate(b []byte) (time.Time, error) {
	days, err := DecodeI32(b)
	if err != nil {
		return time.Time{}, err
	}
	return pgEpoch.AddDate(0, 0, int(days)), nil
}

// DecodeTimestamp decodes an 8-byte microsecond count relative to pgEpoch,
// used for both timestamp and timestamptz columns (the wire format is
// identical; timestamptz values are normalized to UTC server-side).
func DecodeTimestamp(b []byte) (time.Time, error) {
	micros, err := DecodeI64(b)
	if err != nil {
		return time.Time{}, err
	}
	return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}

// Numeric is a decoded `numeric` column in its native packed base-10000
// representation: spec.md §4.5 requires exposing (ndigits, weight, sign,
// dscale, digits) rather than forcing a premature float/decimal conversion.
type Numeric struct {
	Weight int16
	Sign   uint16
	DScale uint16
	Digits []int16 // base-10000 digits, most significant first
}

const (
	numericPositive = 0x0000
	numericNegative = 0x4000
	numericNaN      = 0xC000
)

// IsNaN reports whether this value is the Postgres numeric NaN sentinel.
func (n Numeric) IsNaN() bool { return n.Sign == numericNaN }

// Float64 converts the packed digits to a float64, using the base-10000
// weighted-digit definition directly (RFC-free, Postgres-internal format).
// Returns an error for NaN, matching spec.md's "numeric NaN is a decode
// error when decoding into a non-NaN-capable target".
func (n Numeric) Float64() (float64, error) {
	if n.IsNaN() {
		return 0, fmt.Errorf("pg: numeric value is NaN")
	}
	var val float64
	for _, d := range n.Digits {
		val = val*10000 + float64(d)
	}
	val *= math.Pow(10000, float64(n.Weight)-float64(len(n.Digits)-1))
	if n.Sign == numericNegative {
		val = -val
	}
	return val, nil
}

// DecodeNumeric parses the packed `(ndigits, weight, sign, dscale,
// digits[ndigits])` big-endian structure spec.md §4.5 describes.
func DecodeNumeric(b []byte) (Numeric, error) {
	if len(b) < 8 {
		return Numeric{}, fmt.Errorf("pg: numeric column too short: %d bytes", len(b))
	}
	ndigits := binary.BigEndian.Uint16(b[0:2])
	weight := int16(binary.BigEndian.Uint16(b[2:4]))
	sign := binary.BigEndian.Uint16(b[4:6])
	dscale := binary.BigEndian.Uint16(b[6:8])
	if sign != numericPositive && sign != numericNegative && sign != numericNaN {
		return Numeric{}, fmt.Errorf("pg: numeric column has invalid sign nibble 0x%x", sign)
	}
	want := 8 + int(ndigits)*2
	if len(b) < want {
		return Numeric{}, fmt.Errorf("pg: numeric column declares %d digits but only has %d bytes", ndigits, len(b)-8)
	}
	digits := make([]int16, ndigits)
	for i := range digits {
		digits[i] = int16(binary.BigEndian.Uint16(b[8+i*2:]))
	}
	return Numeric{Weight: weight, Sign: sign, DScale: dscale, Digits: digits}, nil
}

// Encode serializes n back to the packed `(ndigits, weight, sign, dscale,
// digits[ndigits])` wire structure, the inverse of DecodeNumeric. Used by
// ParamNumeric to bind a numeric value without a lossy float round trip.
func (n Numeric) Encode() []byte {
	b := make([]byte, 8+len(n.Digits)*2)
	binary.BigEndian.PutUint16(b[0:2], uint16(len(n.Digits)))
	binary.BigEndian.PutUint16(b[2:4], uint16(n.Weight))
	binary.BigEndian.PutUint16(b[4:6], n.Sign)
	binary.BigEndian.PutUint16(b[6:8], n.DScale)
	for i, d := range n.Digits {
		binary.BigEndian.PutUint16(b[8+i*2:], uint16(d))
	}
	return b
}

// TypedDecoder lets a caller-defined type T declare its canonical Postgres
// OID and how to decode its own binary column representation, matching
// spec.md §4.5's "pluggable via a typed capability" requirement.
type TypedDecoder interface {
	PgType() uint32
	DecodePg(raw []byte) error
}
