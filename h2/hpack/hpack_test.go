package hpack

import "testing"

func TestHuffmanRoundTripsArbitraryBytes(t *testing.T) {
	cases := []string{
		"",
		"www.example.com",
		"custom-key: custom-value",
		string([]byte{0x00, 0x01, 0xff, 0x7f, 0x80}), // opaque/binary payload
	}
	for _, s := range cases {
		enc := HuffmanEncode(nil, s)
		if got := HuffmanEncodedLen(s); got != len(enc) {
			t.Fatalf("HuffmanEncodedLen(%q) = %d, actual encode produced %d bytes", s, got, len(enc))
		}
		dec, err := HuffmanDecode(nil, enc)
		if err != nil {
			t.Fatalf("HuffmanDecode(%q): %v", s, err)
		}
		if string(dec) != s {
			t.Fatalf("round trip mismatch: got %q, want %q", dec, s)
		}
	}
}

func TestHuffmanCodeIsPrefixFree(t *testing.T) {
	// Every byte must have a code, and no code may be a prefix of another
	// (guaranteed by construction via the binary tree, but worth locking
	// down): encoding two symbols back to back and decoding must recover
	// both in order regardless of pairing.
	for a := 0; a < 256; a += 37 {
		for b := 0; b < 256; b += 53 {
			s := string([]byte{byte(a), byte(b)})
			enc := HuffmanEncode(nil, s)
			dec, err := HuffmanDecode(nil, enc)
			if err != nil {
				t.Fatalf("decode(%v): %v", []byte(s), err)
			}
			if string(dec) != s {
				t.Fatalf("got %v, want %v", []byte(dec), []byte(s))
			}
		}
	}
}

func TestStaticTableLookup(t *testing.T) {
	table := NewDynamicTable(4096)
	f, ok := table.lookup(2) // :method GET, RFC 7541 Appendix A
	if !ok || f.Name != ":method" || f.Value != "GET" {
		t.Fatalf("lookup(2) = %+v, %v", f, ok)
	}
	if _, ok := table.lookup(0); ok {
		t.Fatalf("index 0 must never resolve")
	}
}

func TestDynamicTableInsertAndLookup(t *testing.T) {
	table := NewDynamicTable(4096)
	table.Insert(HeaderField{Name: "x-custom", Value: "one"})
	table.Insert(HeaderField{Name: "x-custom", Value: "two"})

	// Index 62 is the newest dynamic entry (RFC 7541 §2.3.3: 1..61 static,
	// 62+ dynamic, newest first).
	f, ok := table.lookup(staticTableSize + 1)
	if !ok || f.Value != "two" {
		t.Fatalf("expected newest entry at index %d, got %+v, %v", staticTableSize+1, f, ok)
	}
	f, ok = table.lookup(staticTableSize + 2)
	if !ok || f.Value != "one" {
		t.Fatalf("expected oldest entry at index %d, got %+v, %v", staticTableSize+2, f, ok)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", table.Len())
	}
}

func TestDynamicTableEvictsOldestToFitBudget(t *testing.T) {
	table := NewDynamicTable(4096)
	// Each entry costs len(name)+len(value)+32; three 43-byte entries under
	// a budget that only fits two should evict the oldest on the third
	// insert.
	entrySize := HeaderField{Name: "k", Value: "0123456789"}.Size() // 1+10+32 = 43
	table.SetMaxSize(entrySize * 2)

	table.Insert(HeaderField{Name: "k", Value: "0123456789"})
	table.Insert(HeaderField{Name: "k", Value: "9876543210"})
	if table.Len() != 2 {
		t.Fatalf("expected 2 entries before overflow, got %d", table.Len())
	}

	table.Insert(HeaderField{Name: "k", Value: "aaaaaaaaaa"})
	if table.Len() != 2 {
		t.Fatalf("expected oldest entry evicted, got %d entries", table.Len())
	}
	newest, _ := table.At(0)
	if newest.Value != "aaaaaaaaaa" {
		t.Fatalf("expected newest entry to survive, got %+v", newest)
	}
	if _, ok := table.At(1); !ok {
		t.Fatalf("expected second-newest entry to survive")
	}
}

func TestDynamicTableEntryLargerThanWholeTableIsDropped(t *testing.T) {
	table := NewDynamicTable(50)
	table.Insert(HeaderField{Name: "k", Value: "this value alone already exceeds the whole table budget"})
	if table.Len() != 0 {
		t.Fatalf("expected an oversized entry to leave the table empty, got %d entries", table.Len())
	}
}

func TestSetMaxSizeShrinksAndEvicts(t *testing.T) {
	table := NewDynamicTable(4096)
	table.Insert(HeaderField{Name: "a", Value: "111111111111111111111111111111"})
	table.Insert(HeaderField{Name: "b", Value: "222222222222222222222222222222"})
	if table.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", table.Len())
	}
	table.SetMaxSize(0)
	if table.Len() != 0 {
		t.Fatalf("expected shrinking max size to 0 to evict everything, got %d entries", table.Len())
	}
}

func TestEncodeDecodeFieldsRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},       // exact static match
		{Name: ":path", Value: "/widgets/42"}, // name-only static match
		{Name: "x-request-id", Value: "abc-123"},
		{Name: "authorization", Value: "Bearer secret", Sensitive: true},
	}

	var block []byte
	block = enc.EncodeFields(block, fields)

	got, err := dec.DecodeFields(block)
	if err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}
	if len(got) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i].Name != f.Name || got[i].Value != f.Value {
			t.Fatalf("field %d: got %+v, want %+v", i, got[i], f)
		}
	}
}

func TestEncodeFieldsRepeatedInsertionGrowsDynamicTable(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	f := HeaderField{Name: "x-custom", Value: "same-value-every-time"}
	var block1, block2 []byte
	block1 = enc.EncodeField(block1, f)
	block2 = enc.EncodeField(block2, f)

	// Second encode of the same field should hit the encoder's own dynamic
	// table and produce a short indexed representation rather than
	// re-encoding the literal.
	if len(block2) >= len(block1) {
		t.Fatalf("expected second encode (%d bytes) to be shorter than the first literal encode (%d bytes)", len(block2), len(block1))
	}

	got1, err := dec.DecodeFields(block1)
	if err != nil {
		t.Fatalf("DecodeFields block1: %v", err)
	}
	got2, err := dec.DecodeFields(block2)
	if err != nil {
		t.Fatalf("DecodeFields block2: %v", err)
	}
	if got1[0] != got2[0] {
		t.Fatalf("decoded fields diverge: %+v vs %+v", got1[0], got2[0])
	}
}

func TestDecodeFieldsAppliesInlineDynamicTableSizeUpdate(t *testing.T) {
	dec := NewDecoder(4096)
	var block []byte
	block = appendInt(block, 0x20, 5, 100) // dynamic table size update to 100
	if _, err := dec.DecodeFields(block); err != nil {
		t.Fatalf("DecodeFields: %v", err)
	}
	if dec.table.MaxSize() != 100 {
		t.Fatalf("expected decoder's table max size to become 100, got %d", dec.table.MaxSize())
	}
}

func TestDecodeFieldsRejectsHeaderListOverBudget(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)
	dec.SetMaxHeaderListSize(40) // smaller than even one typical field

	var block []byte
	block = enc.EncodeField(block, HeaderField{Name: "x-long-header-name", Value: "a reasonably long value"})

	if _, err := dec.DecodeFields(block); err != ErrHeaderListTooLarge {
		t.Fatalf("expected ErrHeaderListTooLarge, got %v", err)
	}
}

func TestDecodeFieldsRejectsInvalidIndex(t *testing.T) {
	dec := NewDecoder(4096)
	block := appendInt(nil, 0x80, 7, 9999) // far beyond static+dynamic range
	if _, err := dec.DecodeFields(block); err == nil {
		t.Fatalf("expected an error decoding an out-of-range indexed field")
	}
}

func TestPrefixedIntegerRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 30, 31, 32, 127, 128, 1000, 1 << 20}
	for _, n := range cases {
		enc := appendInt(nil, 0x00, 5, n)
		got, consumed, err := readInt(enc, 5)
		if err != nil {
			t.Fatalf("readInt(%d): %v", n, err)
		}
		if consumed != len(enc) {
			t.Fatalf("readInt(%d) consumed %d bytes, wrote %d", n, consumed, len(enc))
		}
		if got != n {
			t.Fatalf("round trip mismatch: got %d, want %d", got, n)
		}
	}
}
