package pg

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"

	chunkreader "github.com/jackc/chunkreader/v2"
	"github.com/jackc/pgproto3/v2"
	"go.uber.org/zap"

	"github.com/outline-cli-ws/protocore/internal/obslog"
)

// Conn is a single-owner PostgreSQL executor connection: the startup/auth
// handshake, simple and extended query protocols, and the prepared-
// statement cache all live on it, per spec.md §3's "Postgres executor" data
// model.
type Conn struct {
	nc     net.Conn
	fe     *pgproto3.Frontend
	logger *zap.Logger

	cfg Config

	cache       *statementCache
	fingerprint fingerprinter

	params   map[string]string // server ParameterStatus values, by name
	backend  struct {
		pid    uint32
		secret uint32
	}
	closed bool
}

// Connect performs the startup message and authentication handshake over an
// already-dialed net.Conn (plain TCP or already past TLS negotiation,
// spec.md §3's "a TCP (or TLS) stream").
func Connect(ctx context.Context, nc net.Conn, cfg Config, logger *zap.Logger) (*Conn, error) {
	c := &Conn{
		nc:          nc,
		fe:          pgproto3.NewFrontend(chunkreader.NewChunkReader(nc), nc),
		logger:      obslog.Or(logger),
		cfg:         cfg,
		cache:       newStatementCache(cfg.StatementCacheSize, cfg.StatementCacheEvictFraction),
		fingerprint: newFingerprinter(),
		params:      make(map[string]string),
	}
	if err := c.startup(ctx); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) startup(ctx context.Context) error {
	params := map[string]string{"user": c.cfg.User}
	if c.cfg.Database != "" {
		params["database"] = c.cfg.Database
	}
	for k, v := range c.cfg.RuntimeParams {
		params[k] = v
	}

	c.fe.Send(&pgproto3.StartupMessage{ProtocolVersion: pgproto3.ProtocolVersionNumber, Parameters: params})
	if err := c.fe.Flush(); err != nil {
		return fmt.Errorf("pg: sending startup message: %w", err)
	}

	if err := c.authenticate(ctx); err != nil {
		return err
	}

	for {
		msg, err := c.fe.Receive()
		if err != nil {
			return fmt.Errorf("pg: reading post-auth startup message: %w", err)
		}
		switch m := msg.(type) {
		case *pgproto3.ParameterStatus:
			c.params[m.Name] = m.Value
		case *pgproto3.BackendKeyData:
			c.backend.pid = m.ProcessID
			c.backend.secret = m.SecretKey
		case *pgproto3.ReadyForQuery:
			return nil
		case *pgproto3.ErrorResponse:
			return c.reshapeError(m)
		default:
			c.logger.Debug("pg: unexpected startup message", zap.String("type", fmt.Sprintf("%T", m)))
		}
	}
}

func (c *Conn) authenticate(ctx context.Context) error {
	msg, err := c.fe.Receive()
	if err != nil {
		return fmt.Errorf("pg: reading authentication request: %w", err)
	}
	switch m := msg.(type) {
	case *pgproto3.AuthenticationOk:
		return nil
	case *pgproto3.AuthenticationCleartextPassword:
		c.fe.Send(&pgproto3.PasswordMessage{Password: c.cfg.Password})
		return c.finishAuth()
	case *pgproto3.AuthenticationMD5Password:
		hashed := md5Auth(c.cfg.User, c.cfg.Password, m.Salt)
		c.fe.Send(&pgproto3.PasswordMessage{Password: hashed})
		return c.finishAuth()
	case *pgproto3.AuthenticationSASL:
		return c.authenticateSCRAM(ctx, m.AuthMechanisms)
	case *pgproto3.ErrorResponse:
		return c.reshapeError(m)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedAuth, msg)
	}
}

// md5Auth computes "md5" ++ hex(md5(hex(md5(password ++ user)) ++ salt)),
// the exact two-round digest spec.md §4.5 specifies.
func md5Auth(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	innerHex := hex.EncodeToString(inner[:])
	outer := md5.Sum(append([]byte(innerHex), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

func (c *Conn) authenticateSCRAM(ctx context.Context, mechanisms []string) error {
	supported := false
	for _, m := range mechanisms {
		if m == scramMechanism {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: server offered %v, want %s", ErrUnsupportedAuth, mechanisms, scramMechanism)
	}

	sc, err := newScramClient(c.cfg.Password)
	if err != nil {
		return err
	}
	c.fe.Send(&pgproto3.SASLInitialResponse{AuthMechanism: scramMechanism, Data: sc.initialResponse()})
	if err := c.fe.Flush(); err != nil {
		return fmt.Errorf("pg: sending SASL initial response: %w", err)
	}

	msg, err := c.fe.Receive()
	if err != nil {
		return fmt.Errorf("pg: reading SASL continue: %w", err)
	}
	cont, ok := msg.(*pgproto3.AuthenticationSASLContinue)
	if !ok {
		if errResp, ok := msg.(*pgproto3.ErrorResponse); ok {
			return c.reshapeError(errResp)
		}
		return fmt.Errorf("pg: expected AuthenticationSASLContinue, got %T", msg)
	}

	final, err := sc.finalResponse(cont.Data)
	if err != nil {
		return err
	}
	c.fe.Send(&pgproto3.SASLResponse{Data: final})
	if err := c.fe.Flush(); err != nil {
		return fmt.Errorf("pg: sending SASL response: %w", err)
	}

	msg, err = c.fe.Receive()
	if err != nil {
		return fmt.Errorf("pg: reading SASL final: %w", err)
	}
	fin, ok := msg.(*pgproto3.AuthenticationSASLFinal)
	if !ok {
		if errResp, ok := msg.(*pgproto3.ErrorResponse); ok {
			return c.reshapeError(errResp)
		}
		return fmt.Errorf("pg: expected AuthenticationSASLFinal, got %T", msg)
	}
	if err := sc.verifyServerFinal(fin.Data); err != nil {
		return err
	}
	return c.finishAuth()
}

// finishAuth flushes any pending password response and consumes messages
// until AuthenticationOk (or an ErrorResponse aborts the handshake).
func (c *Conn) finishAuth() error {
	if err := c.fe.Flush(); err != nil {
		return fmt.Errorf("pg: flushing auth response: %w", err)
	}
	msg, err := c.fe.Receive()
	if err != nil {
		return fmt.Errorf("pg: reading authentication result: %w", err)
	}
	switch m := msg.(type) {
	case *pgproto3.AuthenticationOk:
		return nil
	case *pgproto3.ErrorResponse:
		return c.reshapeError(m)
	default:
		return fmt.Errorf("pg: unexpected message awaiting AuthenticationOk: %T", msg)
	}
}

// Close terminates the connection, sending a Terminate message first so the
// server can clean up gracefully.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.fe.Send(&pgproto3.Terminate{})
	_ = c.fe.Flush()
	return c.nc.Close()
}

// ProcessID and SecretKey identify this backend for an out-of-band Cancel
// request, per the BackendKeyData the server sends during startup.
func (c *Conn) ProcessID() uint32 { return c.backend.pid }
func (c *Conn) SecretKey() uint32 { return c.backend.secret }

// ServerParameter returns a ParameterStatus value reported at startup (e.g.
// "server_version", "server_encoding").
func (c *Conn) ServerParameter(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

// dispatchAsync handles the three message kinds that can arrive
// asynchronously between query responses: NoticeResponse,
// NotificationResponse (LISTEN/NOTIFY passthrough, spec.md's supplemented
// feature) and ParameterStatus. Returns true if msg was one of these and has
// been consumed.
func (c *Conn) dispatchAsync(msg pgproto3.BackendMessage) bool {
	switch m := msg.(type) {
	case *pgproto3.NoticeResponse:
		if c.cfg.OnNotice != nil {
			c.cfg.OnNotice(dbErrorFromNotice(m))
		}
		return true
	case *pgproto3.NotificationResponse:
		if c.cfg.OnNotification != nil {
			c.cfg.OnNotification(m.Channel, m.Payload)
		}
		return true
	case *pgproto3.ParameterStatus:
		c.params[m.Name] = m.Value
		return true
	default:
		return false
	}
}
