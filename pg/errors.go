// Package pg implements the PostgreSQL frontend (client) wire protocol
// described in spec.md §4.5: startup/auth, simple and extended query, a
// fingerprint-keyed prepared-statement cache, typed row decode, and rich
// error parsing. Message framing and field layout are delegated to
// github.com/jackc/pgproto3/v2, the same library the pack's Postgres-aware
// proxies (e.g. mickamy-sql-tap) build on; pg supplies everything on top:
// auth driving, the statement cache, typed decode, and DbError shaping.
package pg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgproto3/v2"
)

// ErrUnknownStatementID is returned when a caller's cached statement index
// no longer refers to a live cache entry, because the FIFO-half eviction
// policy reclaimed it between uses (spec.md §4.5 "eviction signal").
var ErrUnknownStatementID = errors.New("pg: prepared statement was evicted from the cache")

// ErrUnsupportedAuth is returned when the server requests an authentication
// method this executor does not implement.
var ErrUnsupportedAuth = errors.New("pg: unsupported authentication method")

// ErrUnrecognizedTag is returned in place of a DbError when an
// ErrorResponse's severity tag falls outside the protocol's fixed set and
// Config.LenientTags is false, per spec.md:115 "unrecognised tags are a
// parse error unless configured lenient."
var ErrUnrecognizedTag = errors.New("pg: unrecognised severity tag in server response")

// knownSeverities is the fixed severity-tag set the Postgres protocol
// defines for ErrorResponse/NoticeResponse's 'V' (non-localized severity)
// field.
var knownSeverities = map[string]bool{
	"ERROR": true, "FATAL": true, "PANIC": true,
	"WARNING": true, "NOTICE": true, "DEBUG": true, "INFO": true, "LOG": true,
}

// DbError is a parsed ErrorResponse or NoticeResponse, carrying every field
// documented in the Postgres wire protocol (spec.md's "Postgres error" data
// model). Fields are a direct reshaping of pgproto3.ErrorResponse, which
// already parses the tag/cstring pairs off the wire.
type DbError struct {
	Severity            string
	SeverityUnlocalized string
	Code                string
	Message             string
	Detail              string
	Hint                string
	Position            int32
	InternalPosition    int32
	InternalQuery       string
	Where               string
	SchemaName          string
	TableName           string
	ColumnName          string
	DataTypeName        string
	ConstraintName      string
	File                string
	Line                int32
	Routine             string

	// IsNotice distinguishes a NoticeResponse (non-fatal, connection
	// survives) from an ErrorResponse (terminates the current query).
	IsNotice bool

	// UnrecognizedSeverity is true when SeverityUnlocalized (falling back
	// to Severity) isn't one of the protocol's fixed severity tags. In
	// strict mode (the default) reshapeError turns this into
	// ErrUnrecognizedTag instead of returning a DbError at all.
	UnrecognizedSeverity bool
}

func (e *DbError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("pg: %s [%s]: %s (%s)", e.Severity, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("pg: %s [%s]: %s", e.Severity, e.Code, e.Message)
}

// Class returns the SQLSTATE class: the first two characters of Code,
// identifying the broad error category per the Postgres error-codes table.
func (e *DbError) Class() string {
	if len(e.Code) < 2 {
		return ""
	}
	return e.Code[:2]
}

func dbErrorFromResponse(r *pgproto3.ErrorResponse) *DbError {
	tag := r.SeverityUnlocalized
	if tag == "" {
		tag = r.Severity
	}
	return &DbError{
		Severity:             r.Severity,
		SeverityUnlocalized:  r.SeverityUnlocalized,
		Code:                 r.Code,
		Message:              r.Message,
		Detail:               r.Detail,
		Hint:                 r.Hint,
		Position:             r.Position,
		InternalPosition:     r.InternalPosition,
		InternalQuery:        r.InternalQuery,
		Where:                r.Where,
		SchemaName:           r.SchemaName,
		TableName:            r.TableName,
		ColumnName:           r.ColumnName,
		DataTypeName:         r.DataTypeName,
		ConstraintName:       r.ConstraintName,
		File:                 r.File,
		Line:                 r.Line,
		Routine:              r.Routine,
		UnrecognizedSeverity: !knownSeverities[tag],
	}
}

func dbErrorFromNotice(r *pgproto3.NoticeResponse) *DbError {
	e := dbErrorFromResponse((*pgproto3.ErrorResponse)(r))
	e.IsNotice = true
	return e
}

// reshapeError turns an ErrorResponse into the caller-visible error for a
// fatal (non-notice) server response, applying Config.LenientTags: strict
// mode rejects an unrecognized severity tag outright instead of silently
// reshaping it into a DbError, per spec.md:115.
func (c *Conn) reshapeError(r *pgproto3.ErrorResponse) error {
	e := dbErrorFromResponse(r)
	if e.UnrecognizedSeverity && !c.cfg.LenientTags {
		tag := e.SeverityUnlocalized
		if tag == "" {
			tag = e.Severity
		}
		return fmt.Errorf("%w: %q", ErrUnrecognizedTag, tag)
	}
	return e
}
