package grpcapi

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/lemonberrylabs/tcalc/pkg/store"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

func startTestServer(t *testing.T) (string, func()) {
	t.Helper()
	s := store.New()
	srv := New(s)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.grpc.Serve(lis)

	return lis.Addr().String(), func() {
		srv.grpc.Stop()
	}
}

func dial(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	return conn
}

func TestCreateAndGetSession(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	sess, err := client.CreateSession(ctx, "calc", "scratch pad")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got := sess.GetFields()["name"].GetStringValue(); got != "sessions/calc" {
		t.Fatalf("unexpected name: %s", got)
	}

	if _, err := client.Evaluate(ctx, "calc", "x = 6 * 7"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	got, err := client.GetSession(ctx, "calc", true)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	vars := got.GetFields()["variables"].GetStructValue().GetFields()
	if vars["x"].GetNumberValue() != 42 {
		t.Fatalf("expected x = 42, got %v", vars)
	}
	if n := len(got.GetFields()["history"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected 1 history entry, got %d", n)
	}
	if d := got.GetFields()["description"].GetStringValue(); d != "scratch pad" {
		t.Fatalf("unexpected description: %q", d)
	}
}

func TestSessionStatePersists(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	if _, err := client.CreateSession(ctx, "s", ""); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	results, err := client.EvaluateProgram(ctx, "s", "sq(x) = x * x\nk = 3")
	if err != nil {
		t.Fatalf("EvaluateProgram: %v", err)
	}
	if len(results) != 2 || results[1] != 3 {
		t.Fatalf("unexpected results: %v", results)
	}

	v, err := client.Evaluate(ctx, "s", "sq(k) + 1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != 10 {
		t.Fatalf("expected 10, got %v", v)
	}

	if err := client.ResetSession(ctx, "s"); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	_, err = client.Evaluate(ctx, "s", "sq(k)")
	if !types.IsKind(err, types.KindUndefinedFunction) {
		t.Fatalf("expected UndefinedFunctionError after reset, got %v", err)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := client.CreateSession(ctx, id, ""); err != nil {
			t.Fatalf("CreateSession(%s): %v", id, err)
		}
	}

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if err := client.DeleteSession(ctx, "a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	_, err = client.GetSession(ctx, "a", false)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	if _, err := client.CreateSession(ctx, "dup", ""); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_, err := client.CreateSession(ctx, "dup", "")
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	_, err = client.CreateSession(ctx, "NOT VALID", "")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestLanguageErrorDetails(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	ctx := context.Background()

	tests := []struct {
		expr   string
		kind   types.Kind
		line   int
		column int
	}{
		{"(1 + 2", types.KindParse, 1, 7},
		{"10 / (5 - 5)", types.KindArithmetic, 1, 4},
		{"y + 1", types.KindUndefinedVariable, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := client.Evaluate(ctx, "", tt.expr)
			if !types.IsKind(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			pos, ok := types.PositionOf(err)
			if !ok {
				t.Fatalf("expected a position on %v", err)
			}
			if pos.Line != tt.line || pos.Column != tt.column {
				t.Errorf("position = %s, want %d:%d", pos, tt.line, tt.column)
			}
		})
	}
}

func TestStatusCodes(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	ctx := context.Background()
	client := NewClient(conn)

	_, err := client.invoke(ctx, "Evaluate", map[string]any{"expression": "1 +"})
	if types.KindOf(err) != types.KindParse {
		t.Fatalf("expected ParseError, got %v", err)
	}

	err = StatusFromError(types.NewRecursionError(types.Position{Line: 1, Column: 1}, "f", 10))
	if status.Code(err) != codes.OutOfRange {
		t.Errorf("recursion: got %v", status.Code(err))
	}
	err = StatusFromError(types.NewImportError("no module"))
	if status.Code(err) != codes.FailedPrecondition {
		t.Errorf("import: got %v", status.Code(err))
	}

	_, err = client.Evaluate(ctx, "missing", "1")
	if status.Code(err) != codes.NotFound {
		t.Errorf("missing session: got %v", err)
	}
	_, err = client.Evaluate(ctx, "", "")
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty expression: got %v", err)
	}
}

func TestStatelessProgram(t *testing.T) {
	addr, cleanup := startTestServer(t)
	defer cleanup()

	conn := dial(t, addr)
	defer conn.Close()

	client := NewClient(conn)
	results, err := client.EvaluateProgram(context.Background(), "", "a = 2; b = a * 3; a + b")
	if err != nil {
		t.Fatalf("EvaluateProgram: %v", err)
	}
	want := []float64{2, 6, 8}
	if len(results) != len(want) {
		t.Fatalf("got %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("got %v, want %v", results, want)
		}
	}
}
