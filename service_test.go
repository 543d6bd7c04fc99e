package restq

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/restq/restq/testutil"
)

func newTestService(t *testing.T, baseURL string) *Service {
	t.Helper()
	svc, err := NewService(Config{BaseURL: baseURL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Result{}
	}
}

func TestNewService_ValidatesConfig(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewService(Config{BaseURL: "not a url"}); err == nil {
		t.Error("expected error for malformed base URL")
	}
}

func TestPerformJSON_ArrayResult(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `{"results": [{"id":1},{"id":2}]}`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	call := NewCall(GET, "/users").WithRootKey("results")
	if _, err := svc.PerformJSON(context.Background(), call, true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	res := waitResult(t, done)
	if res.Kind != ResultArray {
		t.Fatalf("kind = %q, want %q (err: %v)", res.Kind, ResultArray, res.Err)
	}
	if len(res.Array) != 2 {
		t.Errorf("array length = %d, want 2", len(res.Array))
	}
}

func TestPerformJSON_ObjectResult(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users/1", 200, `{"results": {"id":1,"username":"bob"}}`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	call := NewCall(GET, "/users/1").WithRootKey("results")
	if _, err := svc.PerformJSON(context.Background(), call, true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	res := waitResult(t, done)
	if res.Kind != ResultObject {
		t.Fatalf("kind = %q, want %q", res.Kind, ResultObject)
	}
	if diff := cmp.Diff(map[string]any{"id": 1.0, "username": "bob"}, res.Object); diff != "" {
		t.Errorf("object mismatch (-want +got):\n%s", diff)
	}
}

func TestPerformJSON_NotFoundNode(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `{"other": 5}`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	call := NewCall(GET, "/users").WithRootKey("results")
	if _, err := svc.PerformJSON(context.Background(), call, true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	if res := waitResult(t, done); res.Kind != ResultNotFound {
		t.Errorf("kind = %q, want %q", res.Kind, ResultNotFound)
	}
}

func TestPerformJSON_Acknowledgement(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /ping", 204, ``).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	if _, err := svc.PerformJSON(context.Background(), NewCall(GET, "/ping"), true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	if res := waitResult(t, done); res.Kind != ResultAck {
		t.Errorf("kind = %q, want %q", res.Kind, ResultAck)
	}
}

func TestPerformJSON_HTTPFailure(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 500, `{"error":"boom"}`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	if _, err := svc.PerformJSON(context.Background(), NewCall(GET, "/users"), true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	res := waitResult(t, done)
	if !res.Failed() {
		t.Fatalf("kind = %q, want failure", res.Kind)
	}
	if got := CodeOf(res.Err); got != CodeHTTPStatus {
		t.Errorf("error code = %q, want %q", got, CodeHTTPStatus)
	}
}

func TestPerformJSON_DecodeFailure(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `{not json`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	if _, err := svc.PerformJSON(context.Background(), NewCall(GET, "/users"), true, func(res Result) { done <- res }); err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	res := waitResult(t, done)
	if !res.Failed() {
		t.Fatalf("kind = %q, want failure", res.Kind)
	}
	if got := CodeOf(res.Err); got != CodeDecodeFailure {
		t.Errorf("error code = %q, want %q", got, CodeDecodeFailure)
	}
}

func TestPerformJSON_InvalidCall(t *testing.T) {
	svc := newTestService(t, "http://api.test")
	h, err := svc.PerformJSON(context.Background(), NewCall("FETCH", "/users"), true, func(Result) {})
	if err == nil {
		t.Fatal("expected error for unknown verb")
	}
	if h != nil {
		t.Error("handle should be nil when creation fails")
	}
	if got := CodeOf(err); got != CodeInvalidSession {
		t.Errorf("error code = %q, want %q", got, CodeInvalidSession)
	}
}

func TestPerformWrite(t *testing.T) {
	srv := testutil.NewServer().
		Route("POST /users", 201, `{"id": 3}`).
		Route("POST /broken", 422, `{"error":"unprocessable"}`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())

	done := make(chan error, 1)
	call := NewCall(POST, "/users").WithParameters(BodyParameters(map[string]any{"username": "bob"}))
	if _, err := svc.PerformWrite(context.Background(), call, true, func(err error) { done <- err }); err != nil {
		t.Fatalf("PerformWrite: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("write completion = %v, want nil", err)
	}

	req, ok := srv.LastRequest()
	if !ok {
		t.Fatal("no request recorded")
	}
	if diff := cmp.Diff(`{"username":"bob"}`, string(req.Body)); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.PerformWrite(context.Background(), NewCall(POST, "/broken"), true, func(err error) { done <- err }); err != nil {
		t.Fatalf("PerformWrite: %v", err)
	}
	if err := <-done; CodeOf(err) != CodeHTTPStatus {
		t.Errorf("write completion = %v, want http_status error", err)
	}
}

func TestHandle_SuspendedUntilResumed(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `[]`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 1)
	h, err := svc.PerformJSON(context.Background(), NewCall(GET, "/users"), false, func(res Result) { done <- res })
	if err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}
	if got := h.State(); got != StateSuspended {
		t.Fatalf("state = %q, want %q", got, StateSuspended)
	}

	select {
	case <-done:
		t.Fatal("suspended handle completed without Resume")
	case <-time.After(50 * time.Millisecond):
	}
	if len(srv.Requests()) != 0 {
		t.Fatal("suspended handle sent a request")
	}

	h.Resume()
	if res := waitResult(t, done); res.Kind != ResultArray {
		t.Errorf("kind = %q, want %q", res.Kind, ResultArray)
	}
	if got := h.State(); got != StateCompleted {
		t.Errorf("state after completion = %q, want %q", got, StateCompleted)
	}
}

func TestHandle_ResumeIsIdempotent(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `[]`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	done := make(chan Result, 8)
	h, err := svc.PerformJSON(context.Background(), NewCall(GET, "/users"), false, func(res Result) { done <- res })
	if err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	h.Resume()
	h.Resume()
	h.Resume()
	waitResult(t, done)

	select {
	case <-done:
		t.Error("duplicate completion delivered")
	case <-time.After(50 * time.Millisecond):
	}
	if got := len(srv.Requests()); got != 1 {
		t.Errorf("requests sent = %d, want 1", got)
	}
}

func TestHandle_CancelSuspended(t *testing.T) {
	srv := testutil.NewServer().
		Route("GET /users", 200, `[]`).
		Start()
	defer srv.Close()

	svc := newTestService(t, srv.URL())
	h, err := svc.PerformJSON(context.Background(), NewCall(GET, "/users"), false, func(Result) {
		t.Error("canceled suspended handle must never run")
	})
	if err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}

	h.Cancel()
	if got := h.State(); got != StateCanceled {
		t.Fatalf("state = %q, want %q", got, StateCanceled)
	}
	h.Resume() // no-op after cancel
	time.Sleep(50 * time.Millisecond)
}

func TestHandle_HasID(t *testing.T) {
	svc := newTestService(t, "http://api.test")
	h1, err := svc.PerformJSON(context.Background(), NewCall(GET, "/a"), false, func(Result) {})
	if err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}
	h2, err := svc.PerformJSON(context.Background(), NewCall(GET, "/b"), false, func(Result) {})
	if err != nil {
		t.Fatalf("PerformJSON: %v", err)
	}
	if h1.ID() == "" || h2.ID() == "" {
		t.Fatal("handles must carry identifiers")
	}
	if h1.ID() == h2.ID() {
		t.Errorf("handle IDs collide: %q", h1.ID())
	}
}
