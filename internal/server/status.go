package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/siteforge/internal/metrics"
)

// CategoryStatus is the last known run of one category.
type CategoryStatus struct {
	Category string
	LastRun  time.Time
	Duration time.Duration
	Written  int
	Error    string
}

// StatusSource supplies the status page.
type StatusSource interface {
	Statuses() []CategoryStatus
	Stats() metrics.Snapshot
}

func (s *DevServer) statusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		templ.Handler(statusPage(s.opts.Status, s.Sessions())).ServeHTTP(w, r)
	})
}

// statusPage renders the run table of every category.
func statusPage(src StatusSource, sessions int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var statuses []CategoryStatus
		var stats metrics.Snapshot
		if src != nil {
			statuses = src.Statuses()
			stats = src.Stats()
		}

		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>siteforge status</title>`+
			`<style>body{font-family:system-ui,sans-serif;margin:2rem}table{border-collapse:collapse}td,th{padding:.3rem .8rem;border-bottom:1px solid #ddd;text-align:left}.failed{color:#b00020}</style>`+
			`</head><body><h1>siteforge</h1>`); err != nil {
			return err
		}

		if _, err := fmt.Fprintf(w, `<p>%d sessions, %d runs, %d failed, %.1f%% success, average %s</p>`,
			sessions, stats.TotalRuns, stats.FailedRuns, stats.SuccessRate(), stats.AverageDuration.Round(time.Millisecond)); err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>Category</th><th>Last run</th><th>Duration</th><th>Files</th><th>Result</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, st := range statuses {
			lastRun, result, class := "never", "ok", ""
			if !st.LastRun.IsZero() {
				lastRun = st.LastRun.Format(time.TimeOnly)
			}
			if st.Error != "" {
				result, class = st.Error, ` class="failed"`
			}
			if _, err := fmt.Fprintf(w, `<tr%s><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>`,
				class,
				templ.EscapeString(st.Category),
				lastRun,
				st.Duration.Round(time.Millisecond),
				st.Written,
				templ.EscapeString(result)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table></body></html>`)
		return err
	})
}
