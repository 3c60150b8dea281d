package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

type fakeOutboxPruner struct {
	cutoff   time.Time
	attempts int
	calls    int
	err      error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.attempts = terminalAttempts
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, repo *fakeOutboxPruner, retention time.Duration, attempts int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:           logger.Nop(),
		DB:               passthroughTx{},
		Repository:       repo,
		Retention:        retention,
		TerminalAttempts: attempts,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, 48*time.Hour, 3)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 1, repo.calls)
	require.Equal(t, now.Add(-48*time.Hour), repo.cutoff)
	require.Equal(t, 3, repo.attempts)
}

func TestOutboxRetentionDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, 0, 0)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-defaultOutboxRetention), repo.cutoff)
	require.Equal(t, defaultTerminalAttempts, repo.attempts)
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakeOutboxPruner{err: errors.New("boom")}, 0, 0)
	require.ErrorContains(t, job.Run(context.Background()), "boom")
}
