package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/semgw/meter"
	"i4.energy/across/semgw/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "readings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Latest(ctx)
	require.ErrorIs(t, err, store.ErrNoReadings)

	base := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Insert(ctx, meter.Reading{Time: base.Add(time.Minute), Watts: 480, TID: 2}))
	require.NoError(t, s.Record(ctx, meter.Reading{Time: base, Watts: 500, TID: 1}))

	r, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, r.Time.Equal(base.Add(time.Minute)))
	assert.Equal(t, int32(480), r.Watts)
	assert.Equal(t, uint16(2), r.TID)
}

func TestDailySummary(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	readings := []meter.Reading{
		{Time: day.Add(-time.Minute), Watts: 9999, TID: 1},
		{Time: day.Add(10 * time.Hour), Watts: 600, TID: 2},
		{Time: day.Add(10*time.Hour + time.Minute), Watts: -120, TID: 3},
		{Time: day.Add(10*time.Hour + 2*time.Minute), Watts: 300, TID: 4},
		{Time: day.Add(11 * time.Hour), Watts: 900, TID: 5},
		{Time: day.Add(24 * time.Hour), Watts: 9999, TID: 6},
	}
	for _, r := range readings {
		require.NoError(t, s.Insert(ctx, r))
	}

	sum, err := s.DailySummary(ctx, day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15", sum.Day)
	assert.Equal(t, 4, sum.Samples)
	assert.Equal(t, int32(-120), sum.MinWatts)
	assert.Equal(t, int32(900), sum.MaxWatts)
	assert.InDelta(t, 420.0, sum.AvgWatts, 1e-9)
	// 600 W and -120 W for a minute each, then 300 W held for MaxGap.
	assert.InDelta(t, 10.0-2.0+25.0, sum.EnergyWh, 1e-9)

	_, err = s.DailySummary(ctx, day.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, store.ErrNoReadings)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Close(), store.ErrClosed)
	assert.ErrorIs(t, s.Insert(ctx, meter.Reading{}), store.ErrClosed)
	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.DailySummary(ctx, time.Now())
	assert.ErrorIs(t, err, store.ErrClosed)
}
