package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedLifecycle(times ...time.Time) *Lifecycle {
	i := 0
	return &Lifecycle{now: func() time.Time {
		t := times[min(i, len(times)-1)]
		i++
		return t
	}}
}

func newPending(l *Lifecycle) *Order {
	return l.Begin(&Order{Number: "ORD-000001", StoreID: "store-1"}, "u1", "")
}

func TestLifecycle_Begin(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := fixedLifecycle(at)

	o := l.Begin(&Order{Number: "ORD-000001"}, "guest", "ring the bell")
	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, StatusUpdate{Status: StatusPending, At: at, Note: "ring the bell", Actor: "guest"}, o.Timeline[0])
	assert.Equal(t, at, o.CreatedAt)
	assert.Nil(t, o.ActualReadyAt)
}

func TestLifecycle_LegalPaths(t *testing.T) {
	paths := map[string][]Status{
		"delivery":          {StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery, StatusDelivered},
		"pickup":            {StatusConfirmed, StatusPreparing, StatusReady, StatusPickedUp},
		"cancel pending":    {StatusCancelled},
		"cancel confirmed":  {StatusConfirmed, StatusCancelled},
		"cancel preparing":  {StatusConfirmed, StatusPreparing, StatusCancelled},
		"cancel ready":      {StatusConfirmed, StatusPreparing, StatusReady, StatusCancelled},
		"cancel on the way": {StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery, StatusCancelled},
	}

	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			l := NewLifecycle()
			o := newPending(l)
			for _, to := range path {
				next, err := l.Transition(o, to, "staff-1", "")
				require.NoError(t, err, "%s -> %s", o.Status, to)
				o = next
			}
			assert.Equal(t, path[len(path)-1], o.Status)
			assert.Len(t, o.Timeline, len(path)+1)
			assert.True(t, o.Status.Terminal())
			for i, to := range path {
				assert.Equal(t, to, o.Timeline[i+1].Status)
			}
		})
	}
}

func TestLifecycle_IllegalEdges(t *testing.T) {
	all := []Status{
		StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery,
		StatusDelivered, StatusPickedUp, StatusCancelled, StatusRefunded,
	}
	l := NewLifecycle()

	for _, from := range all {
		for _, to := range all {
			if CanTransition(from, to) {
				continue
			}
			o := &Order{Number: "ORD-000001", Status: from, Timeline: []StatusUpdate{{Status: from}}}
			next, err := l.Transition(o, to, "staff-1", "")

			var ite *InvalidTransitionError
			require.ErrorAs(t, err, &ite, "%s -> %s", from, to)
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)
			assert.Nil(t, next)
			assert.Equal(t, from, o.Status)
			assert.Len(t, o.Timeline, 1)
		}
	}
}

func TestLifecycle_PendingToReadyRejected(t *testing.T) {
	l := NewLifecycle()
	o := newPending(l)

	_, err := l.Transition(o, StatusReady, "staff-1", "")
	require.EqualError(t, err, "invalid status transition from pending to ready")
	assert.Equal(t, StatusPending, o.Status)
	assert.Len(t, o.Timeline, 1)
}

func TestLifecycle_TransitionDoesNotMutateInput(t *testing.T) {
	l := NewLifecycle()
	o := newPending(l)

	next, err := l.Transition(o, StatusConfirmed, "staff-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Len(t, o.Timeline, 1)
	assert.Len(t, next.Timeline, 2)
}

func TestLifecycle_ReadyStampedOnce(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := t0.Add(20 * time.Minute)
	second := t0.Add(25 * time.Minute)
	l := fixedLifecycle(t0, t0, t0, first, second)

	o := newPending(l)
	var err error
	for _, to := range []Status{StatusConfirmed, StatusPreparing, StatusReady} {
		o, err = l.Transition(o, to, "staff-1", "")
		require.NoError(t, err)
	}
	require.NotNil(t, o.ActualReadyAt)
	assert.Equal(t, first, *o.ActualReadyAt)

	// Administrative re-trigger of ready.
	o, err = l.Override(o, StatusReady, "admin-1", "re-announce")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, o.Status)
	assert.Len(t, o.Timeline, 5)
	assert.Equal(t, second, o.Timeline[4].At)
	assert.Equal(t, first, *o.ActualReadyAt)
}

func TestLifecycle_Override(t *testing.T) {
	l := NewLifecycle()

	o := newPending(l)
	skipped, err := l.Override(o, StatusReady, "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, skipped.Status)
	assert.NotNil(t, skipped.ActualReadyAt)

	_, err = l.Override(o, StatusRefunded, "admin-1", "")
	require.Error(t, err)

	_, err = l.Override(o, "lost", "admin-1", "")
	require.Error(t, err)

	done := &Order{Status: StatusDelivered}
	_, err = l.Override(done, StatusReady, "admin-1", "")
	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
}

func TestLifecycle_Refund(t *testing.T) {
	l := NewLifecycle()

	for _, from := range []Status{StatusDelivered, StatusPickedUp} {
		o := &Order{Status: from, Timeline: []StatusUpdate{{Status: from}}}
		next, err := l.Refund(o, "admin-1", "cold food")
		require.NoError(t, err)
		assert.Equal(t, StatusRefunded, next.Status)
		assert.Equal(t, "cold food", next.Last().Note)
		assert.True(t, next.Status.Terminal())
	}

	for _, from := range []Status{StatusPending, StatusReady, StatusCancelled, StatusRefunded} {
		_, err := l.Refund(&Order{Status: from}, "admin-1", "")
		var ite *InvalidTransitionError
		require.ErrorAs(t, err, &ite, from)
		assert.Equal(t, StatusRefunded, ite.To)
	}
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("lost").Valid())
	assert.False(t, Status("lost").Terminal())
	assert.False(t, StatusReady.Terminal())
	for _, s := range []Status{StatusDelivered, StatusPickedUp, StatusCancelled, StatusRefunded} {
		assert.True(t, s.Terminal(), s)
	}
}
