// Package query implements the C6 query pipeline: query admission,
// lifecycle, statement dispatch, name resolution, and the planning
// helpers spec §4.6 describes sitting on top of the session (C6
// lifecycle half, internal/session), running-queries registry (C5),
// metastore (C2), and catalog list (C4).
package query

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/embucket/embucket/internal/apperror"
	"github.com/embucket/embucket/internal/catalog"
	"github.com/embucket/embucket/internal/metastore"
	"github.com/embucket/embucket/internal/registry"
	"github.com/embucket/embucket/internal/session"
)

// Result is what a successfully executed query produces. Full Arrow
// record-batch streaming lives in internal/execution; this layer
// carries only what the dispatch table and the wire adapters need to
// report a terminal outcome. Record is set for statements whose output
// is materialized entirely here rather than streamed from the logical
// planner: the information_schema view SHOW dispatches to (spec
// §4.6.4), a single-table SELECT's rows or count, and MERGE's summary
// row.
type Result struct {
	Kind       string
	RowsViewed int
	Record     arrow.Record
}

// UserQuery is one query's execution context: the session it runs
// under, its rewritten/parsed statement, and the cancellable context
// its registry entry owns.
type UserQuery struct {
	QueryID   string
	RequestID string
	Session   *session.UserSession
	SQL       string
}

// delayedRemoval is how long a finished query's registry record is
// kept around after publishing its terminal status, so a wait() that
// raced the finish still observes it (spec §4.6.2 step 7).
const delayedRemoval = time.Second

// Engine wires together everything submit/wait/abort touches.
type Engine struct {
	Sessions          *session.Manager
	Registry          *registry.Registry
	Metastore         *metastore.Metastore
	Catalogs          *catalog.CatalogList
	MaxConcurrency    int
	QueryTimeout      time.Duration
	Execute           func(ctx context.Context, q *UserQuery, stmt Dispatched) (Result, error)

	resultsMu sync.Mutex
	results   map[string]Result
}

// New builds an Engine. maxConcurrency <= 0 means unlimited; timeout
// <= 0 means no per-query deadline.
func New(sessions *session.Manager, reg *registry.Registry, ms *metastore.Metastore, catalogs *catalog.CatalogList, maxConcurrency int, timeout time.Duration) *Engine {
	return &Engine{
		Sessions:       sessions,
		Registry:       reg,
		Metastore:      ms,
		Catalogs:       catalogs,
		MaxConcurrency: maxConcurrency,
		QueryTimeout:   timeout,
		results:        make(map[string]Result),
	}
}

func (e *Engine) storeResult(queryID string, res Result) {
	e.resultsMu.Lock()
	e.results[queryID] = res
	e.resultsMu.Unlock()
}

// takeResult returns a query's stored result without removing it.
// run drops it via forgetResult after the same delayedRemoval window
// the registry record gets, so a racing Wait can still observe it
// (spec §4.6.2 step 7).
func (e *Engine) takeResult(queryID string) (Result, bool) {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	res, ok := e.results[queryID]
	return res, ok
}

func (e *Engine) forgetResult(queryID string) {
	e.resultsMu.Lock()
	delete(e.results, queryID)
	e.resultsMu.Unlock()
}

// Submit implements spec §4.6.2's submit(session_id, sql, ctx): it
// resolves the session, enforces the concurrency gate, mints a query
// id, and spawns the task that races execution against cancellation
// and the query timeout. It returns immediately with the minted query
// id; call Wait to observe the terminal outcome.
func (e *Engine) Submit(parent context.Context, sessionID, requestID, sql string) (string, error) {
	sess, err := e.Sessions.Get(sessionID)
	if err != nil {
		return "", err
	}

	if e.MaxConcurrency > 0 && e.Registry.Count() >= e.MaxConcurrency {
		return "", apperror.Newf("Engine.Submit", apperror.KindConcurrencyLimit, "running query count has reached max_concurrency_level (%d)", e.MaxConcurrency)
	}

	queryID := uuid.NewString()
	rq, ctx := e.Registry.NewQuery(parent, queryID, requestID, sessionID)

	q := &UserQuery{QueryID: queryID, RequestID: requestID, Session: sess, SQL: sql}
	go e.run(ctx, rq, q)

	return queryID, nil
}

// run races the execution subtask against cancellation and the
// configured timeout (spec §4.6.2 steps 5-7), then publishes the
// terminal outcome and schedules the record's delayed removal.
func (e *Engine) run(ctx context.Context, rq *registry.RunningQuery, q *UserQuery) {
	runCtx := ctx
	var cancelTimeout context.CancelFunc
	if e.QueryTimeout > 0 {
		runCtx, cancelTimeout = context.WithTimeout(ctx, e.QueryTimeout)
		defer cancelTimeout()
	}

	type execOutcome struct {
		res Result
		err error
	}
	done := make(chan execOutcome, 1)
	go func() {
		res, err := e.execute(runCtx, q)
		done <- execOutcome{res, err}
	}()

	var outcome registry.Outcome
	select {
	case o := <-done:
		if o.err != nil {
			outcome = registry.Outcome{Status: registry.StatusFailed, Err: o.err}
		} else {
			outcome = registry.Outcome{Status: registry.StatusSuccessful}
			e.storeResult(q.QueryID, o.res)
		}
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			outcome = registry.Outcome{Status: registry.StatusTimedOut, Err: apperror.New("Engine.run", apperror.KindQueryTimeout, runCtx.Err())}
		} else {
			outcome = registry.Outcome{Status: registry.StatusCancelled, Err: apperror.New("Engine.run", apperror.KindQueryCancelled, runCtx.Err())}
		}
	}

	q.Session.RecordQueryID(q.QueryID)
	e.Registry.NotifyQueryFinished(q.QueryID, outcome)

	time.AfterFunc(delayedRemoval, func() {
		if _, err := e.Registry.Remove(q.QueryID); err != nil {
			log.Debug().Str("query_id", q.QueryID).Err(err).Msg("query already removed from registry")
		}
		e.forgetResult(q.QueryID)
	})
}

func (e *Engine) execute(ctx context.Context, q *UserQuery) (Result, error) {
	stmt, err := Dispatch(q.SQL, q.Session)
	if err != nil {
		return Result{}, err
	}
	if e.Execute != nil {
		return e.Execute(ctx, q, stmt)
	}
	return stmt.Run(ctx, e, q)
}

// Wait implements spec §4.6.2's wait(query_id): it blocks on the
// query's status channel and returns the stored result, or synthesizes
// an error for a terminal non-success status.
func (e *Engine) Wait(ctx context.Context, queryID string) (Result, error) {
	rq, ok := e.Registry.Get(queryID)
	if !ok {
		return Result{}, apperror.Newf("Engine.Wait", apperror.KindQueryIsntRunning, "query %q is not running", queryID)
	}
	outcome, err := rq.Wait(ctx)
	if err != nil {
		return Result{}, err
	}
	if outcome.Status != registry.StatusSuccessful {
		if outcome.Err != nil {
			return Result{}, outcome.Err
		}
		return Result{}, apperror.Newf("Engine.Wait", apperror.KindExecution, "query %q finished with status %s", queryID, outcome.Status)
	}
	res, _ := e.takeResult(queryID)
	return res, nil
}

// Query implements spec §4.6.2's query(session, sql, ctx) = submit then
// wait.
func (e *Engine) Query(ctx context.Context, sessionID, requestID, sql string) (Result, error) {
	queryID, err := e.Submit(ctx, sessionID, requestID, sql)
	if err != nil {
		return Result{}, err
	}
	return e.Wait(ctx, queryID)
}

// Abort implements spec §4.6.2's abort(query_id): asks the registry to
// cancel the query's context.
func (e *Engine) Abort(queryID string) error {
	return e.Registry.Abort(queryID)
}
