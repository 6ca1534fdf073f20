package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/siteforge/internal/metrics"
)

type fakeStatus struct{}

func (fakeStatus) Statuses() []CategoryStatus {
	return []CategoryStatus{
		{Category: "styles", LastRun: time.Now(), Duration: 40 * time.Millisecond, Written: 2},
		{Category: "pug", LastRun: time.Now(), Error: "pug failed: <bad>"},
	}
}

func (fakeStatus) Stats() metrics.Snapshot {
	return metrics.Snapshot{TotalRuns: 2, SuccessfulRuns: 1, FailedRuns: 1}
}

func newTestServer(t *testing.T, opts Options) (*DevServer, *httptest.Server) {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestStaticHTMLInjection(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body><p>hi</p></body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "about.html"), []byte("<p>no body tag</p>"), 0o644))

	_, ts := newTestServer(t, Options{Root: root})

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `<html><body><p>hi</p><script src="/__siteforge/livereload.js" defer></script></body></html>`, body)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	_, body = get(t, ts.URL+"/about.html")
	assert.True(t, strings.HasSuffix(body, string(scriptTag)))
}

func TestStaticAssetsPassThrough(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "style.min.css"), []byte("a{color:red}"), 0o644))

	_, ts := newTestServer(t, Options{Root: root})

	resp, body := get(t, ts.URL+"/css/style.min.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a{color:red}", body)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	resp, body = get(t, ts.URL+"/missing.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotContains(t, body, "livereload")
}

func TestLiveReloadScript(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, body := get(t, ts.URL+ScriptPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Contains(t, body, "/__siteforge/ws")
}

func TestStatusPage(t *testing.T) {
	_, ts := newTestServer(t, Options{Status: fakeStatus{}})

	resp, body := get(t, ts.URL+StatusPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<td>styles</td>")
	assert.Contains(t, body, "pug failed: &lt;bad&gt;")
	assert.Contains(t, body, "50.0% success")
}

func TestMetricsEndpoint(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "siteforge_up 1\n")
	})
	_, ts := newTestServer(t, Options{Metrics: handler})

	_, body := get(t, ts.URL+MetricsPath)
	assert.Equal(t, "siteforge_up 1\n", body)
}

func TestMessageKind(t *testing.T) {
	assert.Equal(t, MessageCSS, MessageKind([]string{"css/style.min.css", "css/style.min.css.map"}))
	assert.Equal(t, MessageReload, MessageKind([]string{"css/style.min.css", "index.html"}))
	assert.Equal(t, MessageReload, MessageKind([]string{"js/app.js"}))
	assert.Equal(t, MessageReload, MessageKind(nil))
}

func TestInjectScript(t *testing.T) {
	assert.Equal(t, "<BODY>x"+string(scriptTag)+"</BODY>", string(injectScript([]byte("<BODY>x</BODY>"))))
	assert.Equal(t, "plain"+string(scriptTag), string(injectScript([]byte("plain"))))
}

func TestAddr(t *testing.T) {
	s := New(Options{Host: "localhost", Port: 3000})
	assert.Equal(t, "localhost:3000", s.Addr())
}
