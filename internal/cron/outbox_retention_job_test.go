package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRetentionRepo struct {
	cutoff time.Time
	calls  int
	err    error
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

func newOutboxRetentionJob(t *testing.T, repo *fakeOutboxRetentionRepo, days int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), Repository: repo, RetentionDays: days})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionJobDeletesPublishedRows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 0)
	job.now = func() time.Time { return now }

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), result.Processed)
	assert.Equal(t, now.Add(-30*24*time.Hour), repo.cutoff)
	assert.Equal(t, 1, repo.calls)
}

func TestOutboxRetentionJobCustomWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{}
	job := newOutboxRetentionJob(t, repo, 7)
	job.now = func() time.Time { return now }

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), repo.cutoff)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newOutboxRetentionJob(t, &fakeOutboxRetentionRepo{err: errors.New("boom")}, 0)
	_, err := job.Run(context.Background())
	require.Error(t, err)
}

type fakeDLQRetentionRepo struct {
	cutoff time.Time
	err    error
}

func (f *fakeDLQRetentionRepo) DeleteFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, f.err
}

func TestOutboxRetentionJobPurgesOldDeadLetters(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	dlq := &fakeDLQRetentionRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      testLogger(),
		Repository:  &fakeOutboxRetentionRepo{},
		DeadLetters: dlq,
	})
	require.NoError(t, err)
	retention := job.(*outboxRetentionJob)
	retention.now = func() time.Time { return now }

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), result.Processed)
	assert.Equal(t, now.Add(-90*24*time.Hour), dlq.cutoff)
	assert.Equal(t, time.Hour, retention.Every())

	dlq.err = errors.New("locked")
	_, err = job.Run(context.Background())
	require.Error(t, err)
}
