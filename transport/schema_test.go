package transport

import (
	"context"
	"net"
	"testing"
	"time"

	chunkreader "github.com/jackc/chunkreader/v2"
	"github.com/jackc/pgproto3/v2"

	"github.com/outline-cli-ws/protocore/pg"
)

// fakeSchemaServer drives a minimal backend: it accepts startup, then
// replies to every simple-query Query message with a CommandComplete of
// commandTags[i] in order, echoing back whatever tag the caller expects for
// BEGIN/COMMIT/ROLLBACK or a migration statement.
func fakeSchemaServer(t *testing.T, conn net.Conn, commandTags []string) {
	t.Helper()
	be := pgproto3.NewBackend(chunkreader.NewChunkReader(conn), conn)

	if _, err := be.ReceiveStartupMessage(); err != nil {
		t.Errorf("fakeSchemaServer: startup: %v", err)
		return
	}
	be.Send(&pgproto3.AuthenticationOk{})
	be.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := be.Flush(); err != nil {
		t.Errorf("fakeSchemaServer: flush startup: %v", err)
		return
	}

	for _, tag := range commandTags {
		msg, err := be.Receive()
		if err != nil {
			t.Errorf("fakeSchemaServer: receive: %v", err)
			return
		}
		if _, ok := msg.(*pgproto3.Query); !ok {
			t.Errorf("fakeSchemaServer: expected Query, got %T", msg)
			return
		}
		be.Send(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
		be.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
		if err := be.Flush(); err != nil {
			t.Errorf("fakeSchemaServer: flush: %v", err)
			return
		}
	}
}

func TestSchemaExecutorTransactionCommits(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go fakeSchemaServer(t, serverSide, []string{"BEGIN", "CREATE TABLE", "COMMIT"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := pg.Connect(ctx, clientSide, pg.Config{User: "tester", Database: "testdb"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	sched := NewSchemaExecutor(conn)
	err = sched.Transaction(ctx, func(s *SchemaExecutor) error {
		_, execErr := s.Execute(ctx, "CREATE TABLE widgets (id serial)")
		return execErr
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
}

func TestSchemaExecutorTransactionRollsBackOnError(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	go fakeSchemaServer(t, serverSide, []string{"BEGIN", "ROLLBACK"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := pg.Connect(ctx, clientSide, pg.Config{User: "tester", Database: "testdb"}, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	sentinel := context.DeadlineExceeded
	sched := NewSchemaExecutor(conn)
	err = sched.Transaction(ctx, func(s *SchemaExecutor) error {
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error to propagate, got %v", err)
	}
}
