package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStats(t *testing.T) {
	stats := NewBuildStats()
	stats.ObserveRun("styles", 100*time.Millisecond, OutcomeSuccess)
	stats.ObserveRun("styles", 300*time.Millisecond, OutcomeFailed)
	stats.IncNotification("css")
	stats.SetSessions(3)

	snap := stats.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRuns)
	assert.Equal(t, int64(1), snap.SuccessfulRuns)
	assert.Equal(t, int64(1), snap.FailedRuns)
	assert.Equal(t, int64(1), snap.Notifications)
	assert.Equal(t, 3, snap.Sessions)
	assert.Equal(t, 200*time.Millisecond, snap.AverageDuration)
	assert.InDelta(t, 50.0, snap.SuccessRate(), 0.001)
}

func TestSnapshotSuccessRateEmpty(t *testing.T) {
	assert.Zero(t, NewBuildStats().Snapshot().SuccessRate())
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveRun("html", 150*time.Millisecond, OutcomeSuccess)
	pr.ObserveStage("html", "copy", 10*time.Millisecond)
	pr.IncNotification("reload")
	pr.SetSessions(2)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 5)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `siteforge_pipeline_runs_total{category="html",outcome="success"} 1`))
	assert.Contains(t, string(body), "siteforge_livereload_sessions 2")
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewBuildStats(), NewBuildStats()
	m := Multi{a, b, NoopRecorder{}}
	m.ObserveRun("fonts", time.Millisecond, OutcomeSuccess)
	m.ObserveStage("fonts", "copy", time.Millisecond)
	m.IncNotification("reload")
	m.SetSessions(1)

	assert.Equal(t, int64(1), a.Snapshot().TotalRuns)
	assert.Equal(t, int64(1), b.Snapshot().Notifications)
	assert.Equal(t, 1, b.Snapshot().Sessions)
}
