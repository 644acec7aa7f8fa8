package hpack

import "fmt"

// ErrHeaderListTooLarge is returned when a decoded header list's summed
// field sizes exceed the configured MaxHeaderListSize. Per spec.md §4.4
// this is rejected locally without tearing down the connection.
var ErrHeaderListTooLarge = fmt.Errorf("hpack: decoded header list exceeds configured max size")

// Decoder parses HPACK header block fragments, maintaining the dynamic
// table that mirrors the peer encoder's insertions.
type Decoder struct {
	table             *DynamicTable
	maxHeaderListSize uint32 // 0 = unbounded
}

func NewDecoder(maxTableSize uint32) *Decoder {
	return &Decoder{table: NewDynamicTable(maxTableSize)}
}

// SetMaxHeaderListSize bounds the decoded list's total size (SETTINGS_
// MAX_HEADER_LIST_SIZE, spec.md §4.4); 0 leaves it unbounded.
func (d *Decoder) SetMaxHeaderListSize(n uint32) { d.maxHeaderListSize = n }

// DecodeFields parses a complete header block fragment into an ordered
// field list, applying any dynamic-table-size-update instructions found
// inline.
func (d *Decoder) DecodeFields(block []byte) ([]HeaderField, error) {
	var out []HeaderField
	var total uint32
	for len(block) > 0 {
		b := block[0]
		switch {
		case b&0x80 != 0: // indexed field, RFC 7541 §6.1
			idx, n, err := readInt(block, 7)
			if err != nil {
				return nil, err
			}
			block = block[n:]
			f, ok := d.table.lookup(int(idx))
			if !ok || idx == 0 {
				return nil, fmt.Errorf("hpack: invalid indexed field index %d", idx)
			}
			out = append(out, f)
			total += f.Size()

		case b&0xc0 == 0x40: // literal with incremental indexing, §6.2.1
			f, n, err := d.readLiteral(block, 6)
			if err != nil {
				return nil, err
			}
			block = block[n:]
			d.table.Insert(f)
			out = append(out, f)
			total += f.Size()

		case b&0xf0 == 0x00: // literal without indexing, §6.2.2
			f, n, err := d.readLiteral(block, 4)
			if err != nil {
				return nil, err
			}
			block = block[n:]
			out = append(out, f)
			total += f.Size()

		case b&0xf0 == 0x10: // literal never indexed, §6.2.3
			f, n, err := d.readLiteral(block, 4)
			if err != nil {
				return nil, err
			}
			f.Sensitive = true
			block = block[n:]
			out = append(out, f)
			total += f.Size()

		case b&0xe0 == 0x20: // dynamic table size update, §6.3
			n, consumed, err := readInt(block, 5)
			if err != nil {
				return nil, err
			}
			d.table.SetMaxSize(uint32(n))
			block = block[consumed:]

		default:
			return nil, fmt.Errorf("hpack: unrecognised field representation 0x%02x", b)
		}

		if d.maxHeaderListSize != 0 && total > d.maxHeaderListSize {
			return nil, ErrHeaderListTooLarge
		}
	}
	return out, nil
}

// readLiteral decodes a literal field representation whose name may be
// either indexed (referring to a static/dynamic entry) or a string
// literal, followed by a value string literal.
func (d *Decoder) readLiteral(block []byte, prefixBits int) (HeaderField, int, error) {
	idx, n, err := readInt(block, prefixBits)
	if err != nil {
		return HeaderField{}, 0, err
	}
	rest := block[n:]
	var name string
	if idx == 0 {
		s, sn, err := readString(rest)
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		rest = rest[sn:]
		n += sn
	} else {
		f, ok := d.table.lookup(int(idx))
		if !ok {
			return HeaderField{}, 0, fmt.Errorf("hpack: invalid name index %d", idx)
		}
		name = f.Name
	}
	value, vn, err := readString(rest)
	if err != nil {
		return HeaderField{}, 0, err
	}
	n += vn
	return HeaderField{Name: name, Value: value}, n, nil
}
