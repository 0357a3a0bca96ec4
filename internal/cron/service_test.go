package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
	"github.com/openfoodnetwork/ofn-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name      string
	err       error
	processed int64
	runs      int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (Result, error) {
	t.runs++
	return Result{Processed: t.processed}, t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})
}

func TestRunCycleRunsEveryJobDespiteFailures(t *testing.T) {
	registry := NewRegistry()
	ok := &testJob{name: "ok", processed: 2}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	require.NoError(t, registry.Register(failing))
	require.NoError(t, registry.Register(ok))

	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["ofn_cron_job_runs_total"])
	assert.True(t, names["ofn_cron_job_processed_total"])
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	registry := NewRegistry()
	job := &testJob{name: "job"}
	require.NoError(t, registry.Register(job))
	lock := &fakeLock{held: true}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 1, lock.acquires)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}

type expiringLock struct {
	fakeLock
	extends int
	lostAt  int
}

func (e *expiringLock) Extend(context.Context) error {
	e.extends++
	if e.extends >= e.lostAt {
		return ErrLockLost
	}
	return nil
}

func TestRunCycleStopsWhenLockLost(t *testing.T) {
	registry := NewRegistry()
	jobs := []*testJob{{name: "a"}, {name: "b"}, {name: "c"}}
	for _, job := range jobs {
		require.NoError(t, registry.Register(job))
	}
	lock := &expiringLock{lostAt: 2}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	require.NoError(t, err)

	err = svc.runCycle(context.Background())
	assert.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, 1, jobs[0].runs)
	assert.Equal(t, 1, jobs[1].runs)
	assert.Equal(t, 0, jobs[2].runs)
	assert.False(t, lock.held)
}

type periodicJob struct {
	testJob
	every time.Duration
}

func (p *periodicJob) Every() time.Duration { return p.every }

func TestRunCycleHonoursPeriodicJobs(t *testing.T) {
	registry := NewRegistry()
	hourly := &periodicJob{testJob: testJob{name: "hourly"}, every: time.Hour}
	flaky := &periodicJob{testJob: testJob{name: "flaky", err: errors.New("boom")}, every: time.Hour}
	always := &testJob{name: "always"}
	for _, job := range []Job{hourly, flaky, always} {
		require.NoError(t, registry.Register(job))
	}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     &fakeLock{},
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, svc.runCycle(context.Background()))
		now = now.Add(20 * time.Minute)
	}
	assert.Equal(t, 1, hourly.runs)
	assert.Equal(t, 3, flaky.runs, "failed runs are retried on the next tick")
	assert.Equal(t, 3, always.runs)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, hourly.runs)
}
