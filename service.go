package restq

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
)

var validate = validator.New()

// Config holds service configuration.
type Config struct {
	// BaseURL is the prefix every call path is resolved against.
	BaseURL string `validate:"required,url"`

	// Timeout is the per-request timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// HTTPClient overrides the transport client. When set, its own timeout
	// applies and Timeout is ignored.
	HTTPClient *http.Client

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service turns a Call into a transport request, dispatches it, and maps the
// raw response into a typed Result or a write acknowledgement. A Service is
// safe for concurrent use by multiple goroutines.
type Service struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewService creates a Service from the given configuration.
func NewService(cfg Config) (*Service, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		baseURL: cfg.BaseURL,
		client:  client,
		logger:  logger,
	}, nil
}

// HandleState is the transport state of one outstanding request.
type HandleState string

const (
	StateSuspended HandleState = "suspended"
	StateRunning   HandleState = "running"
	StateCompleted HandleState = "completed"
	StateCanceled  HandleState = "canceled"
)

// A Handle is an opaque reference to one in-flight request. Handles created
// with autoStart=false stay suspended until Resume is called; a suspended
// handle that is never resumed never completes.
type Handle struct {
	id     string
	call   *Call
	cancel context.CancelFunc
	run    func()
	spawn  func(func())

	mu    sync.Mutex
	state HandleState
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Call returns the call this handle was created for.
func (h *Handle) Call() *Call { return h.call }

// State returns the handle's current transport state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Resume starts a suspended request. It is a no-op for handles that are
// already running, completed, or canceled.
func (h *Handle) Resume() {
	h.mu.Lock()
	if h.state != StateSuspended {
		h.mu.Unlock()
		return
	}
	h.state = StateRunning
	h.mu.Unlock()
	h.spawn(h.run)
}

// Cancel aborts the request. Running requests are interrupted and still
// deliver a failure completion; suspended requests will never run.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.state == StateCompleted {
		h.mu.Unlock()
		return
	}
	h.state = StateCanceled
	h.mu.Unlock()
	h.cancel()
}

// complete marks the handle resolved once its completion has been delivered.
func (h *Handle) complete() {
	h.mu.Lock()
	if h.state != StateCanceled {
		h.state = StateCompleted
	}
	h.mu.Unlock()
}

func goSpawn(f func()) { go f() }

// PerformJSON issues a read call, decodes the response body as JSON, applies
// root extraction, and classifies the outcome into a Result delivered to
// completion. The returned handle is nil if the request could not be created.
// When autoStart is false the caller must Resume the handle.
func (s *Service) PerformJSON(ctx context.Context, call *Call, autoStart bool, completion func(Result)) (*Handle, error) {
	return s.performJSON(ctx, call, autoStart, goSpawn, completion)
}

// PerformWrite issues a write call with no structured decode expected. The
// completion receives nil on success and an error otherwise.
func (s *Service) PerformWrite(ctx context.Context, call *Call, autoStart bool, completion func(error)) (*Handle, error) {
	return s.performWrite(ctx, call, autoStart, goSpawn, completion)
}

func (s *Service) performJSON(ctx context.Context, call *Call, autoStart bool, spawn func(func()), completion func(Result)) (*Handle, error) {
	h, err := s.newHandle(ctx, call, spawn, func(resp *http.Response, body []byte, err error) {
		completion(classifyRead(call.RootKey, resp, body, err))
	})
	if err != nil {
		return nil, err
	}
	if autoStart {
		h.Resume()
	}
	return h, nil
}

func (s *Service) performWrite(ctx context.Context, call *Call, autoStart bool, spawn func(func()), completion func(error)) (*Handle, error) {
	h, err := s.newHandle(ctx, call, spawn, func(resp *http.Response, _ []byte, err error) {
		completion(classifyWrite(resp, err))
	})
	if err != nil {
		return nil, err
	}
	if autoStart {
		h.Resume()
	}
	return h, nil
}

// newHandle validates the call, builds its transport request, and wires the
// dispatch goroutine. The goroutine is not spawned until the handle resumes.
func (s *Service) newHandle(ctx context.Context, call *Call, spawn func(func()), deliver func(*http.Response, []byte, error)) (*Handle, error) {
	if err := validate.Struct(call); err != nil {
		return nil, Errorf(CodeInvalidSession, "invalid call %v: %v", call, err)
	}

	hctx, cancel := context.WithCancel(ctx)
	req, err := call.NewRequest(hctx, s.baseURL, s.logger)
	if err != nil {
		cancel()
		return nil, err
	}

	h := &Handle{
		id:     ulid.Make().String(),
		call:   call,
		cancel: cancel,
		spawn:  spawn,
		state:  StateSuspended,
	}
	h.run = func() {
		defer h.complete()
		resp, err := s.client.Do(req)
		var body []byte
		if err == nil {
			body, err = io.ReadAll(resp.Body)
			resp.Body.Close()
		}
		deliver(resp, body, err)
	}
	return h, nil
}

// classifyRead maps a raw read response onto the Result variants.
func classifyRead(rootKey string, resp *http.Response, body []byte, err error) Result {
	if err != nil {
		return failureResult(err)
	}
	if resp.StatusCode >= 400 {
		return failureResult(StatusError(resp.StatusCode))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ackResult()
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return failureResult(Errorf(CodeDecodeFailure, "decode response: %v", err))
	}
	return resultForNode(RootNode(v, rootKey))
}

// classifyWrite maps a raw write response onto ok or failure.
func classifyWrite(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return StatusError(resp.StatusCode)
	}
	return nil
}
