package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgproto3/v2"
)

// CommandResult reports what CommandComplete (or EmptyQueryResponse)
// conveyed: the command tag and, where applicable, the affected row count
// parsed out of it.
type CommandResult struct {
	Tag          string
	RowsAffected int64
}

// SimpleQuery runs sql via the simple query protocol (spec.md §4.5
// "Simple query"), invoking onRow for every DataRow and returning once
// ReadyForQuery arrives. onRow receives the RowDescription column list
// alongside each row's raw column values so callers can decode lazily.
func (c *Conn) SimpleQuery(ctx context.Context, sql string, onRow func(cols []Column, values [][]byte)) (CommandResult, error) {
	c.fe.Send(&pgproto3.Query{String: sql})
	if err := c.fe.Flush(); err != nil {
		return CommandResult{}, fmt.Errorf("pg: sending simple query: %w", err)
	}

	var cols []Column
	var result CommandResult
	var queryErr error

	for {
		if err := ctx.Err(); err != nil {
			return CommandResult{}, err
		}
		msg, err := c.fe.Receive()
		if err != nil {
			return CommandResult{}, fmt.Errorf("pg: reading simple query response: %w", err)
		}
		if c.dispatchAsync(msg) {
			continue
		}
		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			cols = columnsFromDescription(m)
		case *pgproto3.DataRow:
			if onRow != nil {
				onRow(cols, m.Values)
			}
		case *pgproto3.CommandComplete:
			result = parseCommandTag(string(m.CommandTag))
		case *pgproto3.EmptyQueryResponse:
			result = CommandResult{RowsAffected: 0}
		case *pgproto3.ErrorResponse:
			queryErr = c.reshapeError(m)
		case *pgproto3.ReadyForQuery:
			return result, queryErr
		default:
			// ParameterStatus, NoticeResponse already handled by
			// dispatchAsync; anything else is ignored.
		}
	}
}

func columnsFromDescription(rd *pgproto3.RowDescription) []Column {
	cols := make([]Column, len(rd.Fields))
	for i, f := range rd.Fields {
		cols[i] = Column{
			Name:         string(f.Name),
			OID:          f.DataTypeOID,
			Format:       f.Format,
			TableOID:     f.TableOID,
			TableAttrNum: f.TableAttributeNumber,
			TypeModifier: f.TypeModifier,
		}
	}
	return cols
}

// parseCommandTag extracts the trailing row count from a CommandComplete
// tag like "UPDATE 3" or "INSERT 0 1"; tags without a numeric suffix
// (CREATE TABLE, BEGIN, ...) report RowsAffected 0.
func parseCommandTag(tag string) CommandResult {
	r := CommandResult{Tag: tag}
	var lastSpace = -1
	for i := len(tag) - 1; i >= 0; i-- {
		if tag[i] == ' ' {
			lastSpace = i
			break
		}
	}
	if lastSpace < 0 || lastSpace == len(tag)-1 {
		return r
	}
	n, ok := parseUint(tag[lastSpace+1:])
	if ok {
		r.RowsAffected = n
	}
	return r
}

func parseUint(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var n int64
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int64(ch-'0')
	}
	return n, true
}
