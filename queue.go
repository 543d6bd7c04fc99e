package restq

import (
	"context"
	"log/slog"
	"sync"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/taskgroup"
)

// BatchFunc is invoked exactly once per Queue, after the last tracked request
// completes. failed holds the handles that completed with an error, or nil if
// none did; errs holds the associated errors in completion order, or nil.
type BatchFunc func(failed mapset.Set[*Handle], errs []error)

// Queue batches an arbitrary number of Service calls issued against one
// shared session. It tracks the set of in-flight handles and, once the
// tracked set drains, fires the batch completion callback exactly once and
// releases the session.
//
// A Queue is good for one batch: after finalization no further calls may be
// submitted. All bookkeeping is serialized by an internal mutex, so
// completions delivered on concurrent goroutines are safe.
//
// A handle created with autoStart=false that is never resumed never
// completes and therefore permanently blocks finalization. That is a
// documented hazard of suspended handles, not something the queue guards
// against.
type Queue struct {
	svc    *Service
	logger *slog.Logger
	onDone BatchFunc
	ctx    context.Context
	cancel context.CancelFunc
	tasks  *taskgroup.Group

	mu          sync.Mutex
	tracked     mapset.Set[*Handle]
	failed      mapset.Set[*Handle]
	errs        []error
	finalized   bool
	invalidated bool
}

// NewQueue creates a Queue dispatching through svc. onDone may be nil.
func NewQueue(svc *Service, onDone BatchFunc) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		svc:     svc,
		logger:  svc.logger,
		onDone:  onDone,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   taskgroup.New(nil),
		tracked: mapset.New[*Handle](),
		failed:  mapset.New[*Handle](),
	}
}

// WithLogger sets a custom logger for the queue. It returns the queue for
// chaining.
func (q *Queue) WithLogger(logger *slog.Logger) *Queue {
	if logger != nil {
		q.logger = logger
	}
	return q
}

// PerformJSON submits a read call to the batch. The returned handle is nil
// if the request could not be created; such a call is logged and does not
// count toward the batch. The caller-supplied completion runs after the
// handle has been removed from the tracked set.
func (q *Queue) PerformJSON(call *Call, autoStart bool, completion func(Result)) *Handle {
	var h *Handle
	handle, err := q.svc.performJSON(q.ctx, call, false, q.spawn, func(res Result) {
		q.resolve(h, res.Err)
		if completion != nil {
			completion(res)
		}
		q.maybeFinalize()
	})
	if err != nil {
		q.logger.Error("queue: handle creation failed",
			slog.String("call", call.String()),
			slog.Any("error", err))
		return nil
	}
	h = handle

	if !q.track(h) {
		h.Cancel()
		return nil
	}
	if autoStart {
		h.Resume()
	}
	return h
}

// PerformWrite submits a write call to the batch. Semantics match
// PerformJSON, with the completion receiving nil on success.
func (q *Queue) PerformWrite(call *Call, autoStart bool, completion func(error)) *Handle {
	var h *Handle
	handle, err := q.svc.performWrite(q.ctx, call, false, q.spawn, func(callErr error) {
		q.resolve(h, callErr)
		if completion != nil {
			completion(callErr)
		}
		q.maybeFinalize()
	})
	if err != nil {
		q.logger.Error("queue: handle creation failed",
			slog.String("call", call.String()),
			slog.Any("error", err))
		return nil
	}
	h = handle

	if !q.track(h) {
		h.Cancel()
		return nil
	}
	if autoStart {
		h.Resume()
	}
	return h
}

// track inserts h into the tracked set. It reports false if the queue has
// already been finalized or invalidated, in which case the call is dropped.
func (q *Queue) track(h *Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finalized || q.invalidated {
		q.logger.Warn("queue: call submitted after teardown, dropped",
			slog.String("handle", h.ID()),
			slog.String("call", h.Call().String()))
		return false
	}
	q.tracked.Add(h)
	return true
}

// resolve removes h from the tracked set and records a failure if err is
// non-nil. It no-ops if the queue has already been torn down, so stray
// completions after InvalidateAndCancel do no bookkeeping.
func (q *Queue) resolve(h *Handle, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.finalized || q.invalidated {
		return
	}
	q.tracked.Remove(h)
	if err != nil {
		q.failed.Add(h)
		q.errs = append(q.errs, err)
	}
}

// maybeFinalize fires the batch callback and releases the session once the
// tracked set is empty. Runs after every wrapped completion.
func (q *Queue) maybeFinalize() {
	q.mu.Lock()
	if q.finalized || q.invalidated || !q.tracked.IsEmpty() {
		q.mu.Unlock()
		return
	}
	q.finalized = true
	failed := q.failed
	errs := q.errs
	q.mu.Unlock()

	var failedArg mapset.Set[*Handle]
	if !failed.IsEmpty() {
		failedArg = failed
	}
	var errsArg []error
	if len(errs) > 0 {
		errsArg = errs
	}
	if q.onDone != nil {
		q.onDone(failedArg, errsArg)
	}
	q.cancel()
}

// Resume starts a request that was submitted with autoStart=false.
func (q *Queue) Resume(h *Handle) {
	if h != nil {
		h.Resume()
	}
}

// ResumeAll starts every tracked handle whose transport state is not already
// running or completed.
func (q *Queue) ResumeAll() {
	q.mu.Lock()
	handles := make([]*Handle, 0, q.tracked.Len())
	for h := range q.tracked {
		handles = append(handles, h)
	}
	q.mu.Unlock()

	for _, h := range handles {
		if st := h.State(); st != StateRunning && st != StateCompleted {
			h.Resume()
		}
	}
}

// InvalidateAndCancel clears the tracked and failed sets and forcibly
// invalidates the session without waiting for completion. The batch
// completion callback is never invoked on this path.
func (q *Queue) InvalidateAndCancel() {
	q.mu.Lock()
	q.invalidated = true
	handles := make([]*Handle, 0, q.tracked.Len())
	for h := range q.tracked {
		handles = append(handles, h)
	}
	q.tracked.Clear()
	q.failed.Clear()
	q.errs = nil
	q.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	q.cancel()
}

// Wait blocks until every dispatched request goroutine has finished. It is
// the graceful-teardown safety net: in-flight work is allowed to complete.
func (q *Queue) Wait() {
	q.tasks.Wait()
}

func (q *Queue) spawn(f func()) {
	q.tasks.Go(func() error {
		f()
		return nil
	})
}
