package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardIsCached(t *testing.T) {
	repo := &fakeStats{}
	cache := newMemRedis()
	svc := NewStatisticsService(repo, cache, time.Minute, quietLogger())
	branch := uint(3)

	d, err := svc.Dashboard(context.Background(), &branch)
	require.NoError(t, err)
	assert.Equal(t, int64(4), d.NewCustomers)
	assert.Equal(t, int64(4), d.Consultations)
	assert.InDelta(t, 0.25, d.ConversionRate, 1e-9)
	assert.Equal(t, "1250.5", d.Revenue.String())
	assert.True(t, cache.has("stats:dashboard:3"))
	assert.Equal(t, time.Minute, cache.ttls["stats:dashboard:3"])

	again, err := svc.Dashboard(context.Background(), &branch)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, d.ActiveMemberships, again.ActiveMemberships)

	require.NoError(t, svc.Invalidate(context.Background(), &branch))
	assert.False(t, cache.has("stats:dashboard:3"))

	_, err = svc.Dashboard(context.Background(), &branch)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestInvalidateWithoutBranchClearsEveryDashboard(t *testing.T) {
	repo := &fakeStats{}
	cache := newMemRedis()
	svc := NewStatisticsService(repo, cache, time.Minute, quietLogger())
	north, south := uint(1), uint(2)

	for _, b := range []*uint{nil, &north, &south} {
		_, err := svc.Dashboard(context.Background(), b)
		require.NoError(t, err)
	}
	require.NoError(t, cache.SetToCache(context.Background(), "session:abc", "7", time.Hour))

	require.NoError(t, svc.Invalidate(context.Background(), &north))
	assert.False(t, cache.has("stats:dashboard:1"))
	assert.False(t, cache.has("stats:dashboard:all"))
	assert.True(t, cache.has("stats:dashboard:2"))

	require.NoError(t, svc.Invalidate(context.Background(), nil))
	assert.False(t, cache.has("stats:dashboard:2"))
	assert.True(t, cache.has("session:abc"))
}

func TestDashboardWithoutCache(t *testing.T) {
	repo := &fakeStats{}
	svc := NewStatisticsService(repo, nil, time.Minute, quietLogger())

	_, err := svc.Dashboard(context.Background(), nil)
	require.NoError(t, err)
	_, err = svc.Dashboard(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
	assert.NoError(t, svc.Invalidate(context.Background(), nil))
}

func TestSeriesRange(t *testing.T) {
	svc := NewStatisticsService(&fakeStats{}, nil, time.Minute, quietLogger())
	svc.now = func() time.Time { return time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC) }

	from, to, err := svc.SeriesRange(time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), to)

	_, _, err = svc.SeriesRange(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrInvalidRange)

	rows, err := svc.CustomerSeries(context.Background(), nil, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-03", rows[0].Month)
}
