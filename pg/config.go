package pg

// Config describes how to establish and authenticate a connection.
type Config struct {
	User     string
	Password string
	Database string

	// RuntimeParams are additional StartupMessage parameters (e.g.
	// "application_name", "search_path") sent verbatim.
	RuntimeParams map[string]string

	// StatementCacheSize bounds the prepared-statement cache; 0 uses the
	// package default (64).
	StatementCacheSize int

	// StatementCacheEvictFraction is the fraction of entries evicted, oldest
	// first, when the cache fills; 0 uses the default of 0.5. See
	// DESIGN.md's resolution of spec.md's Open Question (a).
	StatementCacheEvictFraction float64

	// OnNotice, if set, receives every NoticeResponse the server sends
	// (spec.md §4.6 "Notice callback").
	OnNotice func(*DbError)

	// OnNotification, if set, receives asynchronous NOTIFY payloads
	// (spec.md §4.5 supplemented "LISTEN/NOTIFY passthrough").
	OnNotification func(channel, payload string)

	// LenientTags relaxes the severity-tag check ErrorResponse/
	// NoticeResponse parsing applies: by default (false, strict) a
	// SeverityUnlocalized value outside the protocol's fixed severity set
	// is a parse error (ErrUnrecognizedTag); set true to accept it anyway,
	// per spec.md:115 "unrecognised tags are a parse error unless
	// configured lenient."
	LenientTags bool
}
