// Package hpack implements RFC 7541 header compression for the HTTP/2
// engine: the fixed 61-entry static table, a size-bounded dynamic table,
// prefixed-integer and Huffman string codecs, and the field encoder/
// decoder built on top of them.
package hpack

// HeaderField is a single name/value pair, optionally marked "never index"
// per RFC 7541 §6.2.3 (sensitive headers the decoder must not insert into
// its dynamic table or a proxy forward uncompressed).
type HeaderField struct {
	Name      string
	Value     string
	Sensitive bool
}

// Size is RFC 7541 §4.1's accounting rule: 32 bytes of overhead plus the
// UTF-8 byte length of name and value, used uniformly for both the static
// table size estimate (which doesn't matter, it's never evicted) and the
// dynamic table's peer-advertised budget.
func (f HeaderField) Size() uint32 {
	return uint32(len(f.Name)+len(f.Value)) + 32
}

// staticTable is the fixed list from RFC 7541 Appendix A, 1-indexed on the
// wire (index 1 is the first entry here).
var staticTable = []HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

const staticTableSize = 61

// staticNameIndex maps a header name to the lowest static-table index that
// carries it (value empty), used by the encoder's "name-only match" path.
var staticNameIndex = func() map[string]int {
	m := make(map[string]int, staticTableSize)
	for i, f := range staticTable {
		if _, ok := m[f.Name]; !ok {
			m[f.Name] = i + 1
		}
	}
	return m
}()

// staticFullIndex maps "name\x00value" to its static index for exact
// name+value matches, which the encoder always prefers.
var staticFullIndex = func() map[string]int {
	m := make(map[string]int, staticTableSize)
	for i, f := range staticTable {
		m[f.Name+"\x00"+f.Value] = i + 1
	}
	return m
}()
