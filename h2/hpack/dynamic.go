package hpack

// DynamicTable is the per-direction HPACK dynamic table: a bounded
// insertion-ordered ring, evicting from the tail until the size invariant
// (RFC 7541 §4.1) holds. One instance tracks the encoder's view of what the
// peer has acknowledged room for; another (on the decoder side) mirrors
// what the peer's encoder actually inserted.
type DynamicTable struct {
	entries []HeaderField // entries[0] is the most recently inserted
	size    uint32        // sum of Size() over entries
	maxSize uint32
}

// NewDynamicTable constructs a table bounded by maxSize bytes.
func NewDynamicTable(maxSize uint32) *DynamicTable {
	return &DynamicTable{maxSize: maxSize}
}

// SetMaxSize changes the size budget, evicting immediately if it shrinks
// below the current occupancy. This is how a SETTINGS_HEADER_TABLE_SIZE
// change or a dynamic table size update (RFC 7541 §6.3) takes effect.
func (t *DynamicTable) SetMaxSize(n uint32) {
	t.maxSize = n
	t.evictToFit()
}

func (t *DynamicTable) evictToFit() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.Size()
	}
}

// Insert adds f as the newest entry, evicting from the tail as needed. An
// entry larger than the whole table is never stored (RFC 7541 §4.4): the
// table ends up empty instead.
func (t *DynamicTable) Insert(f HeaderField) {
	t.entries = append([]HeaderField{{Name: f.Name, Value: f.Value}}, t.entries...)
	t.size += f.Size()
	t.evictToFit()
}

// Len is the current number of dynamic entries.
func (t *DynamicTable) Len() int { return len(t.entries) }

// At returns the dynamic entry at 0-based insertion-recency index (0 = most
// recently inserted), matching HPACK's "dynamic table index 1 = newest".
func (t *DynamicTable) At(i int) (HeaderField, bool) {
	if i < 0 || i >= len(t.entries) {
		return HeaderField{}, false
	}
	return t.entries[i], true
}

// Size is the current byte accounting total.
func (t *DynamicTable) Size() uint32 { return t.size }

// MaxSize is the configured budget.
func (t *DynamicTable) MaxSize() uint32 { return t.maxSize }

// lookup resolves a combined static+dynamic wire index (RFC 7541 §2.3.3:
// indices 1..61 are static, 62+ are dynamic) to a field.
func (t *DynamicTable) lookup(index int) (HeaderField, bool) {
	if index >= 1 && index <= staticTableSize {
		return staticTable[index-1], true
	}
	return t.At(index - staticTableSize - 1)
}

// fullIndexOf and nameIndexOf search the dynamic table for an encoder
// match, dynamic entries first preferred by callers since they're cheaper
// to keep referencing as connections run (search order itself doesn't
// affect correctness, only compression ratio).
func (t *DynamicTable) fullIndexOf(name, value string) (int, bool) {
	for i, e := range t.entries {
		if e.Name == name && e.Value == value {
			return i + staticTableSize + 1, true
		}
	}
	return 0, false
}

func (t *DynamicTable) nameIndexOf(name string) (int, bool) {
	for i, e := range t.entries {
		if e.Name == name {
			return i + staticTableSize + 1, true
		}
	}
	return 0, false
}
