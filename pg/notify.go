package pg

import "context"

// Listen issues LISTEN channel via the simple query protocol. Notifications
// on channel subsequently arrive via Config.OnNotification, delivered
// whenever any message loop (SimpleQuery, ExecuteWithStmt) is running, since
// NotificationResponse can arrive interleaved with any other backend
// message (spec.md §4.5 supplemented "LISTEN/NOTIFY passthrough").
func (c *Conn) Listen(ctx context.Context, channel string) error {
	_, err := c.SimpleQuery(ctx, "LISTEN "+quoteIdent(channel), nil)
	return err
}

// Unlisten issues UNLISTEN channel.
func (c *Conn) Unlisten(ctx context.Context, channel string) error {
	_, err := c.SimpleQuery(ctx, "UNLISTEN "+quoteIdent(channel), nil)
	return err
}

// Notify issues NOTIFY channel, payload as SELECT pg_notify($1, $2) through
// the extended-query path (ExecuteWithStmt), so channel and payload travel as
// bound parameters with no hand-rolled string-literal escaping.
func (c *Conn) Notify(ctx context.Context, channel, payload string) error {
	_, err := c.ExecuteWithStmt(ctx, "SELECT pg_notify($1, $2)", []Param{ParamText(channel), ParamText(payload)})
	return err
}

// quoteIdent double-quotes an identifier for use in LISTEN/UNLISTEN, which
// take an unparameterized identifier rather than a string literal.
func quoteIdent(ident string) string {
	out := make([]byte, 0, len(ident)+2)
	out = append(out, '"')
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, ident[i])
	}
	out = append(out, '"')
	return string(out)
}
