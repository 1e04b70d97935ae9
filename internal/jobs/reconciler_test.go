package jobs

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResumer struct {
	calls   atomic.Int64
	resumed int
	err     error
}

func (f *fakeResumer) ResumeAutoTransitions(ctx context.Context) (int, error) {
	f.calls.Add(1)
	return f.resumed, f.err
}

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "reconciler-test")
}

func TestReconciler_RunOnce(t *testing.T) {
	resumer := &fakeResumer{resumed: 3}
	reconciler, err := NewReconciler(resumer, testLogger(), "")
	require.NoError(t, err)

	reconciler.RunOnce()
	assert.Equal(t, int64(1), resumer.calls.Load())

	resumer.err = errors.New("storage unavailable")
	reconciler.RunOnce()
	assert.Equal(t, int64(2), resumer.calls.Load())
}

func TestReconciler_RejectsInvalidSchedule(t *testing.T) {
	_, err := NewReconciler(&fakeResumer{}, testLogger(), "not-a-schedule")
	assert.Error(t, err)
}

func TestReconciler_PeriodicRuns(t *testing.T) {
	resumer := &fakeResumer{}
	reconciler, err := NewReconciler(resumer, testLogger(), "@every 1s")
	require.NoError(t, err)

	reconciler.Start()
	defer reconciler.Stop()

	require.Eventually(t, func() bool {
		return resumer.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}
