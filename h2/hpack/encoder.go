package hpack

// Encoder serializes header lists into HPACK-encoded header block
// fragments, maintaining its own dynamic table bounded by whatever size the
// peer has most recently acknowledged via SETTINGS_HEADER_TABLE_SIZE.
type Encoder struct {
	table *DynamicTable
}

func NewEncoder(maxTableSize uint32) *Encoder {
	return &Encoder{table: NewDynamicTable(maxTableSize)}
}

// SetMaxTableSize applies a new peer-advertised table size budget and emits
// the corresponding dynamic-table-size-update instruction into dst per RFC
// 7541 §6.3. Callers are expected to emit this at the start of the next
// header block whenever the size changed since the previous block.
func (e *Encoder) SetMaxTableSize(dst []byte, n uint32) []byte {
	e.table.SetMaxSize(n)
	return appendInt(dst, 0x20, 5, uint64(n))
}

// EncodeField appends f's representation to dst: an indexed field if an
// exact name+value match exists (static or dynamic), else a literal with
// incremental indexing (name indexed when possible) unless f.Sensitive, in
// which case it is encoded as "never indexed" per RFC 7541 §6.2.3 and never
// added to the dynamic table.
func (e *Encoder) EncodeField(dst []byte, f HeaderField) []byte {
	if idx, ok := e.fullMatch(f.Name, f.Value); ok {
		return appendInt(dst, 0x80, 7, uint64(idx))
	}

	nameIdx, hasName := e.nameMatch(f.Name)

	if f.Sensitive {
		if hasName {
			dst = appendInt(dst, 0x10, 4, uint64(nameIdx))
		} else {
			dst = appendInt(dst, 0x10, 4, 0)
			dst = appendString(dst, f.Name)
		}
		return appendString(dst, f.Value)
	}

	if hasName {
		dst = appendInt(dst, 0x40, 6, uint64(nameIdx))
	} else {
		dst = appendInt(dst, 0x40, 6, 0)
		dst = appendString(dst, f.Name)
	}
	dst = appendString(dst, f.Value)
	e.table.Insert(f)
	return dst
}

// EncodeFields encodes an entire header list in order.
func (e *Encoder) EncodeFields(dst []byte, fields []HeaderField) []byte {
	for _, f := range fields {
		dst = e.EncodeField(dst, f)
	}
	return dst
}

func (e *Encoder) fullMatch(name, value string) (int, bool) {
	if idx, ok := staticFullIndex[name+"\x00"+value]; ok {
		return idx, true
	}
	return e.table.fullIndexOf(name, value)
}

func (e *Encoder) nameMatch(name string) (int, bool) {
	if idx, ok := staticNameIndex[name]; ok {
		return idx, true
	}
	return e.table.nameIndexOf(name)
}
