package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_ResetsOnlyStaleRunningJobs(t *testing.T) {
	store := newMemStore()
	clock := newFakeClock(testEpoch)
	metrics := NewMetrics(prometheus.NewRegistry())
	sw := &Sweeper{Store: store, Threshold: 5 * time.Minute, Metrics: metrics, Log: zerolog.Nop(), Now: clock.Now}

	store.put(Job{UserID: 1, Status: StatusRunning, RetryCount: 2, UpdatedAt: testEpoch.Add(-6 * time.Minute)})
	store.put(Job{UserID: 2, Status: StatusRunning, RetryCount: 1, UpdatedAt: testEpoch.Add(-time.Minute)})
	store.put(Job{UserID: 3, Status: StatusFailed, RetryCount: 1, UpdatedAt: testEpoch.Add(-time.Hour)})

	n, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale := store.job(1)
	assert.Equal(t, StatusScheduled, stale.Status)
	assert.Equal(t, 2, stale.RetryCount, "recovery is not a retry attempt")
	assert.Contains(t, *stale.LastError, "recovered")
	assert.Equal(t, testEpoch, stale.UpdatedAt)

	assert.Equal(t, StatusRunning, store.job(2).Status)
	assert.Equal(t, StatusFailed, store.job(3).Status)
	assert.Empty(t, store.allLogs(), "recovery writes no execution log")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.recovered))

	clock.Advance(5 * time.Minute)
	n, err = sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusScheduled, store.job(2).Status)
	assert.Equal(t, 1, store.job(2).RetryCount)
}

func TestSweeper_EveryRegistersFixedInterval(t *testing.T) {
	sw := &Sweeper{Store: newMemStore(), Log: zerolog.Nop()}
	c := cron.New()

	id, err := sw.Every(c, 2*time.Minute)
	require.NoError(t, err)

	entry := c.Entry(id)
	require.True(t, entry.Valid())
	assert.Equal(t, testEpoch.Add(2*time.Minute), entry.Schedule.Next(testEpoch))

	id, err = sw.Every(c, 0)
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(DefaultStaleThreshold), c.Entry(id).Schedule.Next(testEpoch))
}
