package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nomadcxx/embress/internal/config"
	"github.com/Nomadcxx/embress/internal/database"
	"github.com/Nomadcxx/embress/internal/logging"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTickSkipsWhenDisabled(t *testing.T) {
	f := setup(t)
	s := newScheduler(f.coord, time.Hour, logging.Nop())

	s.tick()

	runs, err := f.db.ListRuns(context.Background(), database.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Nil(t, s.Status().LastTick)
}

func TestSchedulerTickRunsScheduledScan(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.coord.SetSchedulerEnabled(context.Background(), true))
	f.file(t, "Show.Name.S01E01.mkv", "x")
	s := newScheduler(f.coord, time.Hour, logging.Nop())

	s.tick()

	last, err := f.db.LastRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, database.TriggerScheduled, last.Trigger)
	assert.Equal(t, 1, last.Counts.RenamedVideo)

	st := s.Status()
	assert.True(t, st.Healthy)
	assert.NotNil(t, st.LastSuccess)
}

func TestSchedulerTickSkipsWhenBusy(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.coord.SetSchedulerEnabled(context.Background(), true))
	s := newScheduler(f.coord, time.Hour, logging.Nop())

	tok, err := f.coord.acquire(KindRollback, "run x")
	require.NoError(t, err)
	s.tick()
	s.tick()
	f.coord.release(tok)

	st := s.Status()
	assert.Equal(t, int64(2), st.SkippedTicks)
	assert.True(t, st.Healthy, "a skipped tick is not a failure")
	assert.Equal(t, float64(2), testutil.ToFloat64(f.coord.metrics.ScheduledSkips))

	runs, err := f.db.ListRuns(context.Background(), database.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "skipped ticks are not queued")
}

func TestStartStopScheduler(t *testing.T) {
	f := setup(t, func(c *config.Config) { c.Scan.Interval = "1h" })

	s, err := f.coord.StartScheduler()
	require.NoError(t, err)
	again, err := f.coord.StartScheduler()
	require.NoError(t, err)
	assert.Same(t, s, again)

	st, err := f.coord.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Scheduler)
	assert.True(t, st.Scheduler.Running)
	require.NotNil(t, st.Scheduler.NextRun)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *st.Scheduler.NextRun, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f.coord.StopScheduler(ctx)
	assert.False(t, s.Status().Running)
}

func TestCronLoggerFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, "soon", fields[1].Value)

	cronLogger{logger: logging.Nop()}.Error(errors.New("boom"), "panic")
}
