package pg

import (
	"encoding/binary"
	"math"
)

// Postgres built-in type OIDs this executor knows how to encode/decode in
// binary format (pg_type.oid, from the system catalog).
const (
	OIDBool        = 16
	OIDBytea       = 17
	OIDInt8        = 20
	OIDInt2        = 21
	OIDInt4        = 23
	OIDText        = 25
	OIDFloat4      = 700
	OIDFloat8      = 701
	OIDVarchar     = 1043
	OIDDate        = 1082
	OIDTimestamp   = 1114
	OIDTimestampTZ = 1184
	OIDNumeric     = 1700
)

// Param is a single bind parameter: its encoded binary wire form plus the
// OID the caller expects the server to interpret it as.
type Param struct {
	OID   uint32
	bytes []byte
	null  bool
}

func (p Param) encode() []byte {
	if p.null {
		return nil
	}
	return p.bytes
}

// ParamBool, ParamI16..ParamI64, ParamF32/F64, ParamText, ParamBytea build
// Params for the scalar types spec.md §4.5 names, matching the "unsigned
// encoded as signed of the same width" rule: there is no ParamU* encoder
// because Postgres itself has no unsigned integer types on the wire;
// unsigned Go values are converted by the caller before encoding, the same
// as decode.go's reverse direction.
func ParamBool(v bool) Param {
	b := byte(0)
	if v {
		b = 1
	}
	return Param{OID: OIDBool, bytes: []byte{b}}
}

func ParamI16(v int16) Param {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return Param{OID: OIDInt2, bytes: b}
}

func ParamI32(v int32) Param {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return Param{OID: OIDInt4, bytes: b}
}

func ParamI64(v int64) Param {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return Param{OID: OIDInt8, bytes: b}
}

func ParamF32(v float32) Param {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
	return Param{OID: OIDFloat4, bytes: b}
}

func ParamF64(v float64) Param {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return Param{OID: OIDFloat8, bytes: b}
}

func ParamText(v string) Param {
	return Param{OID: OIDText, bytes: []byte(v)}
}

func ParamBytea(v []byte) Param {
	return Param{OID: OIDBytea, bytes: v}
}

// ParamNull produces a SQL NULL parameter of the given OID; the bind format
// code is unaffected (binary), only the length field on the wire becomes -1.
func ParamNull(oid uint32) Param {
	return Param{OID: oid, null: true}
}

// ParamNumeric builds a bind Param from a packed base-10000 Numeric value,
// the inverse of DecodeNumeric: a caller that decoded a numeric column can
// round-trip it back to the server (e.g. an updated balance) without going
// through a lossy float conversion.
func ParamNumeric(n Numeric) Param {
	return Param{OID: OIDNumeric, bytes: n.Encode()}
}
