package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lemonberrylabs/tcalc/pkg/api"
	grpcapi "github.com/lemonberrylabs/tcalc/pkg/api/grpc"
	"github.com/lemonberrylabs/tcalc/pkg/modules"
	"github.com/lemonberrylabs/tcalc/pkg/runtime"
	"github.com/lemonberrylabs/tcalc/pkg/store"
)

// testServer holds the base URL of the REST API under test, and grpcAddr the
// gRPC endpoint. Both point at in-process servers unless TCALC_URL and
// TCALC_GRPC_ENDPOINT name a running instance.
var (
	testServer string
	grpcAddr   string
)

func TestMain(m *testing.M) {
	testServer = os.Getenv("TCALC_URL")
	grpcAddr = os.Getenv("TCALC_GRPC_ENDPOINT")

	var stop func()
	if testServer == "" || grpcAddr == "" {
		var err error
		stop, err = startServers()
		if err != nil {
			log.Fatalf("start test servers: %v", err)
		}
	}
	// Ensure the URL has a scheme.
	if !strings.HasPrefix(testServer, "http://") && !strings.HasPrefix(testServer, "https://") {
		testServer = "http://" + testServer
	}

	code := m.Run()
	if stop != nil {
		stop()
	}
	os.Exit(code)
}

// startServers runs the REST and gRPC servers on free localhost ports with
// testdata/modules as the modules directory.
func startServers() (func(), error) {
	dir := modules.NewDir(filepath.Join("testdata", "modules"))
	s := store.New(runtime.WithImportResolver(dir))

	rest := api.New(s)
	if err := rest.LoadModules(dir); err != nil {
		return nil, err
	}
	restLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	go rest.App().Listener(restLis)

	gs := grpcapi.New(s)
	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	grpcLis.Close()
	go gs.Serve(grpcLis.Addr().String())

	if testServer == "" {
		testServer = restLis.Addr().String()
	}
	if grpcAddr == "" {
		grpcAddr = grpcLis.Addr().String()
	}
	if err := waitForPort(grpcLis.Addr().String(), 5*time.Second); err != nil {
		return nil, err
	}

	return func() {
		gs.GracefulStop()
		_ = rest.Shutdown()
	}, nil
}

func waitForPort(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s not reachable within %s: %w", addr, timeout, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// loadProgram reads a tcalc program from the testdata directory.
func loadProgram(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", "programs", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load program %s: %v", name, err)
	}
	return string(data)
}

// apiURL builds a full URL for the given API path.
func apiURL(path string) string {
	return strings.TrimRight(testServer, "/") + "/v1/" + path
}

// response is a decoded API response.
type response struct {
	Status int
	Body   map[string]any
}

// call sends a JSON request and decodes the JSON reply.
func call(t *testing.T, method, path string, body any) response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, apiURL(path), r)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s HTTP error: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s decode error: %v", method, path, err)
	}
	return response{Status: resp.StatusCode, Body: out}
}

// createSession creates a session with a unique ID and deletes it when the
// test ends.
func createSession(t *testing.T, prefix string) string {
	t.Helper()
	id := uniqueID(prefix)
	resp := call(t, http.MethodPost, "sessions?sessionId="+id, map[string]any{})
	if resp.Status != http.StatusOK {
		t.Fatalf("createSession failed with status %d: %v", resp.Status, resp.Body)
	}
	t.Cleanup(func() { deleteSession(t, id) })
	return id
}

// deleteSession removes a session (cleanup).
func deleteSession(t *testing.T, id string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodDelete, apiURL("sessions/"+id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Logf("deleteSession warning: %v", err)
		return
	}
	resp.Body.Close()
}

// evaluate evaluates an expression in a session and returns the response.
func evaluate(t *testing.T, session, expression string) response {
	t.Helper()
	return call(t, http.MethodPost, "sessions/"+session+":evaluate", map[string]any{"expression": expression})
}

// runProgram evaluates a program in a session and returns the response.
func runProgram(t *testing.T, session, program string) response {
	t.Helper()
	return call(t, http.MethodPost, "sessions/"+session+":evaluateProgram", map[string]any{"program": program})
}

// assertResult checks a single-expression result.
func assertResult(t *testing.T, resp response, expected float64) {
	t.Helper()
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 but got %d: %v", resp.Status, resp.Body)
	}
	if got, _ := resp.Body["result"].(float64); got != expected {
		t.Errorf("result mismatch: expected %v, got %v", expected, resp.Body["result"])
	}
}

// assertResults checks the per-statement results of a program.
func assertResults(t *testing.T, resp response, expected ...float64) {
	t.Helper()
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 but got %d: %v", resp.Status, resp.Body)
	}

	expectedJSON, _ := json.Marshal(expected)
	actualJSON, _ := json.Marshal(resp.Body["results"])
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("results mismatch:\n  expected: %s\n  actual:   %s", expectedJSON, actualJSON)
	}
}

// assertErrorKind checks that the request failed with the given error kind.
func assertErrorKind(t *testing.T, resp response, kind string) {
	t.Helper()
	if resp.Status < 400 {
		t.Fatalf("expected an error but got %d: %v", resp.Status, resp.Body)
	}
	errMap, ok := resp.Body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error map but got %v", resp.Body)
	}
	if got := errMap["kind"]; got != kind {
		t.Errorf("error kind = %v, want %s; raw error: %v", got, kind, errMap)
	}
}

// uniqueID generates a unique session ID for test isolation.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
