// Package registry implements C5: the running-queries registry — a
// concurrent map keyed by query id with a secondary index by request
// id, cancel tokens, and a watch-style terminal-status channel per
// query (spec §4.5).
package registry

import (
	"context"
	"sync"

	"github.com/embucket/embucket/internal/apperror"
)

// Status is the terminal state of a finished query.
type Status string

const (
	StatusRunning    Status = "Running"
	StatusSuccessful Status = "Successful"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
	StatusTimedOut   Status = "TimedOut"
)

// Outcome is what NotifyQueryFinished publishes and WaitQueryFinished
// observes.
type Outcome struct {
	Status Status
	Err    error
}

// RunningQuery is one in-flight query's bookkeeping. Cancel signals the
// query's cancellation context; Done is closed exactly once, after
// which Outcome holds the terminal result.
type RunningQuery struct {
	QueryID   string
	RequestID string
	SessionID string
	Cancel    context.CancelFunc

	finishOnce sync.Once
	done       chan struct{}
	outcome    Outcome
}

func newRunningQuery(queryID, requestID, sessionID string, cancel context.CancelFunc) *RunningQuery {
	return &RunningQuery{
		QueryID:   queryID,
		RequestID: requestID,
		SessionID: sessionID,
		Cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// finish publishes the terminal outcome exactly once; later calls are
// no-ops, matching spec §4.5's "publishes the terminal status" being a
// one-time event per query.
func (rq *RunningQuery) finish(o Outcome) {
	rq.finishOnce.Do(func() {
		rq.outcome = o
		close(rq.done)
	})
}

// Wait blocks until the query finishes or ctx is cancelled.
func (rq *RunningQuery) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-rq.done:
		return rq.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Registry is the C5 concurrent query table. All map operations take
// only the registry's own mutex and never block on a query's
// lifecycle; waiters hold a reference to their own RunningQuery, not
// the registry.
type Registry struct {
	mu          sync.RWMutex
	byQueryID   map[string]*RunningQuery
	byRequestID map[string]string // request_id -> query_id
}

func New() *Registry {
	return &Registry{
		byQueryID:   make(map[string]*RunningQuery),
		byRequestID: make(map[string]string),
	}
}

// Add inserts a new running query into both indexes.
func (r *Registry) Add(rq *RunningQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byQueryID[rq.QueryID] = rq
	if rq.RequestID != "" {
		r.byRequestID[rq.RequestID] = rq.QueryID
	}
}

// Remove deletes a query from both indexes and returns its record.
// Fails with KindQueryIsntRunning if absent (spec §4.5).
func (r *Registry) Remove(queryID string) (*RunningQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rq, ok := r.byQueryID[queryID]
	if !ok {
		return nil, apperror.Newf("Registry.Remove", apperror.KindQueryIsntRunning, "query %q is not running", queryID)
	}
	delete(r.byQueryID, queryID)
	if rq.RequestID != "" {
		delete(r.byRequestID, rq.RequestID)
	}
	return rq, nil
}

// Abort signals the query's cancel token. Idempotent: aborting an
// absent or already-finished query is not an error.
func (r *Registry) Abort(queryID string) error {
	r.mu.RLock()
	rq, ok := r.byQueryID[queryID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if rq.Cancel != nil {
		rq.Cancel()
	}
	return nil
}

// NotifyQueryFinished publishes a query's terminal outcome. Safe to
// call even if nothing is waiting yet; Wait callers arriving later
// still observe it via the closed done channel.
func (r *Registry) NotifyQueryFinished(queryID string, outcome Outcome) {
	r.mu.RLock()
	rq, ok := r.byQueryID[queryID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	rq.finish(outcome)
}

// LocateKind selects which index LocateQueryID consults.
type LocateKind int

const (
	ByQueryID LocateKind = iota
	ByRequestID
)

// LocateQueryID resolves a query id from either a query id (identity)
// or a request id, in O(1).
func (r *Registry) LocateQueryID(kind LocateKind, value string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case ByRequestID:
		qid, ok := r.byRequestID[value]
		return qid, ok
	default:
		_, ok := r.byQueryID[value]
		if !ok {
			return "", false
		}
		return value, ok
	}
}

// Get returns the running-query record for queryID, if present.
func (r *Registry) Get(queryID string) (*RunningQuery, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rq, ok := r.byQueryID[queryID]
	return rq, ok
}

// Count returns the number of in-flight queries, used by admission
// control (spec §4.5/§4.6.2).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byQueryID)
}

// CountForSession returns the number of in-flight queries belonging to
// sessionID, used by the session sweeper to avoid evicting a session
// with work still running (spec §4.6.1).
func (r *Registry) CountForSession(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rq := range r.byQueryID {
		if rq.SessionID == sessionID {
			n++
		}
	}
	return n
}

// NewQuery constructs and registers a RunningQuery under a fresh
// cancellable context derived from parent.
func (r *Registry) NewQuery(parent context.Context, queryID, requestID, sessionID string) (*RunningQuery, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	rq := newRunningQuery(queryID, requestID, sessionID, cancel)
	r.Add(rq)
	return rq, ctx
}
