package pipeline

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/metrics"
)

type suffixSelector string

func (s suffixSelector) Includes(rel string) bool {
	return strings.HasSuffix(rel, string(s)) && !strings.Contains(rel, "/_")
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
}

func (n *recordingNotifier) Notify(_ context.Context, paths []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, paths)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func upper() Stage {
	return Map("upper", func(_ context.Context, f File) (File, error) {
		f.Data = bytes.ToUpper(f.Data)
		return f, nil
	})
}

func failing(err error) Stage {
	return NewStage("fail", func(context.Context, []File) ([]File, error) {
		return nil, err
	})
}

func writeSource(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(body), 0o644))
	}
}

func TestNewValidation(t *testing.T) {
	mem := afero.NewMemMapFs()

	_, err := New(Options{Source: mem, Output: mem, Selector: suffixSelector(".txt")})
	assert.True(t, errors.IsConfigError(err))

	_, err = New(Options{Category: "x", Selector: suffixSelector(".txt")})
	assert.True(t, errors.IsConfigError(err))

	_, err = New(Options{Category: "x", Source: mem, Output: mem})
	assert.True(t, errors.IsConfigError(err))

	_, err = New(Options{Category: "x", Source: mem, Output: mem, Selector: suffixSelector(".txt"), OutputDir: "../up"})
	assert.True(t, errors.IsConfigError(err))
}

func TestRunWritesAndNotifies(t *testing.T) {
	src, out := afero.NewMemMapFs(), afero.NewMemMapFs()
	writeSource(t, src, map[string]string{
		"docs/a.txt":  "alpha",
		"docs/b.txt":  "beta",
		"docs/_c.txt": "partial",
		"docs/d.md":   "other",
	})

	n := &recordingNotifier{}
	stats := metrics.NewBuildStats()
	p, err := New(Options{
		Category:  "docs",
		Stages:    []Stage{upper()},
		OutputDir: "out",
		Source:    src,
		Output:    out,
		Selector:  suffixSelector(".txt"),
		Notifier:  n,
		Recorder:  stats,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"upper"}, p.StageNames())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Inputs)
	assert.Equal(t, []string{"out/docs/a.txt", "out/docs/b.txt"}, res.Written)

	data, err := afero.ReadFile(out, "out/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", string(data))

	exists, err := afero.Exists(out, "out/docs/_c.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.Equal(t, 1, n.count())
	assert.Equal(t, res.Written, n.calls[0])
	assert.Equal(t, int64(1), stats.Snapshot().SuccessfulRuns)
}

func TestRunNotifiesWithNoInputs(t *testing.T) {
	n := &recordingNotifier{}
	p, err := New(Options{
		Category: "empty",
		Source:   afero.NewMemMapFs(),
		Output:   afero.NewMemMapFs(),
		Selector: suffixSelector(".txt"),
		Notifier: n,
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Inputs)
	assert.Equal(t, 1, n.count())
}

func TestRunFailureWritesNothing(t *testing.T) {
	src, out := afero.NewMemMapFs(), afero.NewMemMapFs()
	writeSource(t, src, map[string]string{"a.txt": "alpha"})

	n := &recordingNotifier{}
	stats := metrics.NewBuildStats()
	p, err := New(Options{
		Category: "docs",
		Stages:   []Stage{upper(), failing(stderrors.New("boom"))},
		Source:   src,
		Output:   out,
		Selector: suffixSelector(".txt"),
		Notifier: n,
		Recorder: stats,
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCompileError(err))
	assert.True(t, errors.IsRecoverable(err))
	assert.Equal(t, err, res.Err)

	var se *errors.SiteError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "docs", se.Category)

	exists, _ := afero.Exists(out, "a.txt")
	assert.False(t, exists)
	assert.Zero(t, n.count())
	assert.Equal(t, int64(1), stats.Snapshot().FailedRuns)
}

func TestRunKeepsSiteErrors(t *testing.T) {
	src := afero.NewMemMapFs()
	writeSource(t, src, map[string]string{"a.txt": "alpha"})

	cause := errors.NewCompileError(errors.ErrCodeCompileFailed, "bad syntax", nil).WithLocation("a.txt", 3, 1)
	p, err := New(Options{
		Category: "docs",
		Stages:   []Stage{failing(cause)},
		Source:   src,
		Output:   afero.NewMemMapFs(),
		Selector: suffixSelector(".txt"),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	var se *errors.SiteError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 3, se.Line)
	assert.Equal(t, "docs", se.Category)
}

func TestRunWriteFailureIsIOError(t *testing.T) {
	src := afero.NewMemMapFs()
	writeSource(t, src, map[string]string{"a.txt": "alpha"})

	n := &recordingNotifier{}
	p, err := New(Options{
		Category: "docs",
		Source:   src,
		Output:   afero.NewReadOnlyFs(afero.NewMemMapFs()),
		Selector: suffixSelector(".txt"),
		Notifier: n,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assert.Zero(t, n.count())
}

func TestRunRejectsEscapingOutput(t *testing.T) {
	src := afero.NewMemMapFs()
	writeSource(t, src, map[string]string{"a.txt": "alpha"})

	escape := Map("escape", func(_ context.Context, f File) (File, error) {
		f.Path = "../" + f.Path
		return f, nil
	})
	p, err := New(Options{
		Category: "docs",
		Stages:   []Stage{escape},
		Source:   src,
		Output:   afero.NewMemMapFs(),
		Selector: suffixSelector(".txt"),
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	assert.True(t, errors.IsIOError(err))
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	src, out := afero.NewMemMapFs(), afero.NewMemMapFs()
	writeSource(t, src, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	n := &recordingNotifier{}
	p, err := New(Options{
		Category: "docs",
		Stages:   []Stage{upper()},
		Source:   src,
		Output:   out,
		Selector: suffixSelector(".txt"),
		Notifier: n,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Run(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, n.count())
	data, err := afero.ReadFile(out, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "BETA", string(data))
}

func TestFileExt(t *testing.T) {
	f := File{Path: "css/Base.SASS"}
	assert.Equal(t, ".sass", f.Ext())
	assert.Equal(t, "css/Base.css", f.WithExt(".css").Path)
}
