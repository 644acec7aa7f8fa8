package pg

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// scramClient drives a single SCRAM-SHA-256 exchange (RFC 5802, as profiled
// by Postgres's SASL auth flow): client-first-message-bare, validating the
// server-first message, producing client-final-message with a channel-
// binding marker of "n" (no channel binding, matching libpq's default for
// non-TLS-bound connections), and verifying the server's final signature.
type scramClient struct {
	password string

	clientNonce string
	authMessage string

	saltedPassword []byte
}

const scramMechanism = "SCRAM-SHA-256"

func newScramClient(password string) (*scramClient, error) {
	nonce := make([]byte, 18)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("pg: generating scram nonce: %w", err)
	}
	return &scramClient{
		password:    password,
		clientNonce: base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// InitialResponse is the SASLInitialResponse payload: gs2 header plus
// client-first-message-bare.
func (c *scramClient) initialResponse() []byte {
	clientFirstBare := "n=,r=" + c.clientNonce
	gs2Header := "n,,"
	c.authMessage = clientFirstBare
	return []byte(gs2Header + clientFirstBare)
}

// finalResponse consumes the server-first message (salt, iteration count,
// combined nonce) and returns the client-final-message to send back.
func (c *scramClient) finalResponse(serverFirst []byte) ([]byte, error) {
	fields := strings.Split(string(serverFirst), ",")
	var serverNonce, saltB64, iterStr string
	for _, f := range fields {
		switch {
		case strings.HasPrefix(f, "r="):
			serverNonce = f[2:]
		case strings.HasPrefix(f, "s="):
			saltB64 = f[2:]
		case strings.HasPrefix(f, "i="):
			iterStr = f[2:]
		}
	}
	if serverNonce == "" || saltB64 == "" || iterStr == "" {
		return nil, fmt.Errorf("pg: malformed SCRAM server-first message")
	}
	if !strings.HasPrefix(serverNonce, c.clientNonce) {
		return nil, fmt.Errorf("pg: SCRAM server nonce does not extend client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, fmt.Errorf("pg: decoding SCRAM salt: %w", err)
	}
	iterations, err := strconv.Atoi(iterStr)
	if err != nil || iterations <= 0 {
		return nil, fmt.Errorf("pg: invalid SCRAM iteration count %q", iterStr)
	}

	c.saltedPassword = pbkdf2.Key([]byte(c.password), salt, iterations, sha256.Size, sha256.New)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + serverNonce
	c.authMessage = c.authMessage + "," + string(serverFirst) + "," + clientFinalWithoutProof

	clientKey := hmacSHA256(c.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSignature := hmacSHA256(storedKey[:], []byte(c.authMessage))
	clientProof := xorBytes(clientKey, clientSignature)

	final := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(final), nil
}

// verifyServerFinal checks the server's final signature against the one
// this client independently derived, rejecting a spoofed server.
func (c *scramClient) verifyServerFinal(serverFinal []byte) error {
	s := string(serverFinal)
	if !strings.HasPrefix(s, "v=") {
		return fmt.Errorf("pg: malformed SCRAM server-final message")
	}
	gotSig, err := base64.StdEncoding.DecodeString(s[2:])
	if err != nil {
		return fmt.Errorf("pg: decoding SCRAM server signature: %w", err)
	}
	serverKey := hmacSHA256(c.saltedPassword, []byte("Server Key"))
	wantSig := hmacSHA256(serverKey, []byte(c.authMessage))
	if !hmac.Equal(gotSig, wantSig) {
		return fmt.Errorf("pg: SCRAM server signature mismatch, possible MITM")
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
