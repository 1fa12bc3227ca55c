package registry

import (
	"context"
	"testing"
	"time"

	"github.com/embucket/embucket/internal/apperror"
	"github.com/stretchr/testify/require"
)

func TestAddRemoveAndLocate(t *testing.T) {
	r := New()
	rq, _ := r.NewQuery(context.Background(), "q1", "req1", "sess1")
	require.Equal(t, 1, r.Count())

	qid, ok := r.LocateQueryID(ByRequestID, "req1")
	require.True(t, ok)
	require.Equal(t, "q1", qid)

	got, err := r.Remove("q1")
	require.NoError(t, err)
	require.Same(t, rq, got)
	require.Equal(t, 0, r.Count())

	_, err = r.Remove("q1")
	require.Error(t, err)
	require.Equal(t, apperror.KindQueryIsntRunning, apperror.KindOf(err))
}

func TestAbortIsIdempotentAndCancelsContext(t *testing.T) {
	r := New()
	_, ctx := r.NewQuery(context.Background(), "q1", "", "sess1")

	require.NoError(t, r.Abort("q1"))
	require.NoError(t, r.Abort("q1")) // idempotent
	require.NoError(t, r.Abort("missing"))

	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestNotifyQueryFinishedPublishesOnce(t *testing.T) {
	r := New()
	rq, _ := r.NewQuery(context.Background(), "q1", "", "sess1")

	r.NotifyQueryFinished("q1", Outcome{Status: StatusSuccessful})
	r.NotifyQueryFinished("q1", Outcome{Status: StatusFailed}) // ignored, already finished

	outcome, err := rq.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccessful, outcome.Status)
}

func TestWaitTimesOutWithoutNotify(t *testing.T) {
	r := New()
	rq, _ := r.NewQuery(context.Background(), "q1", "", "sess1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := rq.Wait(ctx)
	require.Error(t, err)
}
