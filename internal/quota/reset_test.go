package quota

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResetter struct {
	count int64
	err   error
	calls atomic.Int32
}

func (f *fakeResetter) ResetStaleQuotas(context.Context) (int64, error) { return f.reset() }
func (f *fakeResetter) ResetStaleUsage(context.Context) (int64, error)  { return f.reset() }
func (f *fakeResetter) ResetStale(context.Context) (int64, error)       { return f.reset() }

func (f *fakeResetter) reset() (int64, error) {
	f.calls.Add(1)
	return f.count, f.err
}

func TestResetJob_RunOnce(t *testing.T) {
	users := &fakeResetter{count: 3}
	orgs := &fakeResetter{count: 1}
	ledgers := &fakeResetter{count: 7}
	job := NewResetJob(users, orgs, ledgers, time.Hour)

	require.NoError(t, job.RunOnce(context.Background()))
	assert.Equal(t, int32(1), users.calls.Load())
	assert.Equal(t, int32(1), orgs.calls.Load())
	assert.Equal(t, int32(1), ledgers.calls.Load())
}

func TestResetJob_RunOnce_PartialFailureStillRunsRest(t *testing.T) {
	users := &fakeResetter{err: errors.New("db down")}
	orgs := &fakeResetter{}
	ledgers := &fakeResetter{}
	job := NewResetJob(users, orgs, ledgers, time.Hour)

	err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), orgs.calls.Load())
	assert.Equal(t, int32(1), ledgers.calls.Load())
}

func TestResetJob_StartRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	users := &fakeResetter{}
	orgs := &fakeResetter{}
	ledgers := &fakeResetter{}
	job := NewResetJob(users, orgs, ledgers, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	// The first pass runs without waiting for a tick.
	assert.Eventually(t, func() bool { return users.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reset job did not stop on context cancel")
	}
}
