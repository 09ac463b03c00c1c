package integration

import (
	"net/http"
	"sync"
	"testing"
)

// TestSession_VariablesPersist verifies bindings survive across requests.
func TestSession_VariablesPersist(t *testing.T) {
	id := createSession(t, "persist")

	assertResult(t, evaluate(t, id, "x = 2 + 3 * 4"), 14)
	assertResult(t, evaluate(t, id, "x / 2"), 7)
	assertResult(t, evaluate(t, id, "ans + 1"), 8)
}

// TestSession_FunctionsPersist verifies user functions survive across requests.
func TestSession_FunctionsPersist(t *testing.T) {
	id := createSession(t, "funcs")

	assertResult(t, evaluate(t, id, "f(a, b) = a * b + 1"), 0)
	assertResult(t, evaluate(t, id, "f(3, 4)"), 13)
	assertResult(t, evaluate(t, id, "def g(n) = f(n, n)"), 0)
	assertResult(t, evaluate(t, id, "g(5)"), 26)
}

// TestSession_Isolation verifies sessions never see each other's bindings.
func TestSession_Isolation(t *testing.T) {
	a := createSession(t, "iso-a")
	b := createSession(t, "iso-b")

	assertResult(t, evaluate(t, a, "secret = 42"), 42)
	assertErrorKind(t, evaluate(t, b, "secret"), "UndefinedVariableError")
	assertResult(t, evaluate(t, b, "secret = 1"), 1)
	assertResult(t, evaluate(t, a, "secret"), 42)
}

// TestSession_ErrorKeepsPriorState verifies a failed evaluation leaves earlier
// bindings in place.
func TestSession_ErrorKeepsPriorState(t *testing.T) {
	id := createSession(t, "errstate")

	assertResult(t, evaluate(t, id, "x = 5"), 5)
	assertErrorKind(t, runProgram(t, id, "x = 6; y = x / 0"), "ArithmeticError")
	assertResult(t, evaluate(t, id, "x"), 6)
	assertErrorKind(t, evaluate(t, id, "y"), "UndefinedVariableError")
}

// TestSession_Reset verifies reset drops user state but keeps builtins.
func TestSession_Reset(t *testing.T) {
	id := createSession(t, "reset")

	assertResult(t, evaluate(t, id, "x = 3"), 3)
	resp := call(t, http.MethodPost, "sessions/"+id+":reset", nil)
	if resp.Status != http.StatusOK {
		t.Fatalf("reset failed with status %d: %v", resp.Status, resp.Body)
	}
	assertErrorKind(t, evaluate(t, id, "x"), "UndefinedVariableError")
	assertResult(t, evaluate(t, id, "sqrt(16)"), 4)
}

// TestSession_History verifies the full view lists evaluations in order.
func TestSession_History(t *testing.T) {
	id := createSession(t, "history")

	evaluate(t, id, "1 + 1")
	evaluate(t, id, "nope")

	resp := call(t, http.MethodGet, "sessions/"+id+"?view=FULL", nil)
	if resp.Status != http.StatusOK {
		t.Fatalf("get failed with status %d", resp.Status)
	}
	history, _ := resp.Body["history"].([]any)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %v", resp.Body["history"])
	}
	second, _ := history[1].(map[string]any)
	if second["source"] != "nope" || second["error"] == nil {
		t.Errorf("unexpected second entry: %v", second)
	}
	if resp.Body["evaluations"] != 2.0 {
		t.Errorf("evaluations = %v", resp.Body["evaluations"])
	}
}

// TestSession_ConcurrentRequests verifies evaluations in one session are
// serialized.
func TestSession_ConcurrentRequests(t *testing.T) {
	id := createSession(t, "concurrent")
	assertResult(t, evaluate(t, id, "n = 0"), 0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evaluate(t, id, "n = n + 1")
		}()
	}
	wg.Wait()

	assertResult(t, evaluate(t, id, "n"), 20)
}

// TestSession_NotFound verifies unknown sessions return 404.
func TestSession_NotFound(t *testing.T) {
	resp := evaluate(t, "does-not-exist", "1")
	if resp.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", resp.Status, resp.Body)
	}
}
