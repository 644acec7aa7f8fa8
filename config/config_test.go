package config

import "testing"

func TestParseValidDocument(t *testing.T) {
	doc, err := Parse([]byte(`
websocket:
  max_message_bytes: 1048576
  compression: permessage-deflate
http2:
  initial_window_size: 1048576
postgres:
  host: db.internal
  port: 5432
  user: app
  database: app
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.WebSocket.MaxMessageBytes != 1048576 {
		t.Fatalf("unexpected max_message_bytes: %d", doc.WebSocket.MaxMessageBytes)
	}
	if doc.Postgres.Port != 5432 {
		t.Fatalf("unexpected postgres port: %d", doc.Postgres.Port)
	}
}

func TestValidateRejectsUnknownCompression(t *testing.T) {
	_, err := Parse([]byte(`websocket:
  compression: gzip
`))
	if err == nil {
		t.Fatalf("expected an error for unsupported compression")
	}
}

func TestValidateRejectsInvalidPostgresPort(t *testing.T) {
	_, err := Parse([]byte(`postgres:
  host: db.internal
  port: 70000
  user: app
`))
	if err == nil {
		t.Fatalf("expected an error for out-of-range postgres port")
	}
}
