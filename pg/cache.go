package pg

// Column describes one result column, mirroring a RowDescription field plus
// the attnum/table linkage spec.md's Prepared statement model asks for.
type Column struct {
	Name          string
	OID           uint32
	Format        int16
	TableOID      uint32
	TableAttrNum  uint16
	TypeModifier  int32
}

// preparedStatement is a cached Parse/Describe result, reused across
// execute_with_stmt calls that hash to the same fingerprint. name is the
// server-side prepared statement identifier (derived from fingerprint, not
// random) so a cache hit can Bind directly without re-sending Parse. gen is
// this entry's insertion generation, used by Stmt to notice it was evicted
// and replaced by a fresh Parse of the same SQL text.
type preparedStatement struct {
	fingerprint uint64
	name        string
	sql         string
	paramTypes  []uint32
	columns     []Column
	gen         uint64
}

// statementCache is the bounded `{fingerprint -> index}` map over a FIFO
// deque of preparedStatement entries described in spec.md §3 ("Postgres
// executor" data model / "Prepared statement" lifecycle). When full, Insert
// evicts the oldest half of entries (by insertion order) and remaps the
// surviving indices, so any caller still holding a stale index is told via
// ErrUnknownStatementID on its next lookup rather than silently hitting the
// wrong statement.
//
// Open Question (spec.md §9(a)) resolved: the eviction fraction is
// configurable via evictFraction, defaulting to 0.5 (evict the oldest
// half), recorded in DESIGN.md.
type statementCache struct {
	maxEntries    int
	evictFraction float64
	nextGen       uint64

	deque []*preparedStatement
	index map[uint64]int
}

func newStatementCache(maxEntries int, evictFraction float64) *statementCache {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if evictFraction <= 0 || evictFraction >= 1 {
		evictFraction = 0.5
	}
	return &statementCache{
		maxEntries:    maxEntries,
		evictFraction: evictFraction,
		index:         make(map[uint64]int),
	}
}

// Lookup returns the cached statement for fingerprint, if any.
func (c *statementCache) Lookup(fingerprint uint64) (*preparedStatement, bool) {
	i, ok := c.index[fingerprint]
	if !ok {
		return nil, false
	}
	return c.deque[i], true
}

// Insert adds a newly-parsed statement, evicting the oldest half of entries
// first if the cache is at capacity, and assigns it the next generation
// number.
func (c *statementCache) Insert(stmt *preparedStatement) {
	if len(c.deque) >= c.maxEntries {
		c.evictOldestHalf()
	}
	stmt.gen = c.nextGen
	c.nextGen++
	c.deque = append(c.deque, stmt)
	c.index[stmt.fingerprint] = len(c.deque) - 1
}

// LookupGen returns the cached statement for fingerprint only if it is still
// the same entry (same generation) a caller-held Stmt was issued against.
// A fingerprint hit with a mismatched generation means the original entry
// was evicted and a different Parse of the same SQL text has since taken
// its place — the caller's handle is stale either way.
func (c *statementCache) LookupGen(fingerprint, gen uint64) (*preparedStatement, bool) {
	stmt, ok := c.Lookup(fingerprint)
	if !ok || stmt.gen != gen {
		return nil, false
	}
	return stmt, true
}

func (c *statementCache) evictOldestHalf() {
	n := len(c.deque)
	cut := int(float64(n) * c.evictFraction)
	if cut <= 0 {
		cut = 1
	}
	if cut > n {
		cut = n
	}
	survivors := append([]*preparedStatement(nil), c.deque[cut:]...)
	c.deque = survivors
	c.index = make(map[uint64]int, len(survivors))
	for i, s := range survivors {
		c.index[s.fingerprint] = i
	}
}

// Len reports the number of currently cached statements.
func (c *statementCache) Len() int { return len(c.deque) }
