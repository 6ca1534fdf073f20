package publish

import (
	"context"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
)

const defaultUploads = 8

// Publisher copies a built tree into a Store.
type Publisher struct {
	store   Store
	fs      afero.Fs
	root    string
	prefix  string
	uploads int
	logger  logging.Logger
}

// Options configures a Publisher.
type Options struct {
	Fs     afero.Fs
	Root   string
	Prefix string
	// Uploads caps concurrent uploads. Zero uses a default.
	Uploads int
	Logger  logging.Logger
}

// Result lists what was uploaded.
type Result struct {
	Keys     []string
	Bytes    int64
	Duration time.Duration
}

// New creates a publisher for opts.Root.
func New(store Store, opts Options) *Publisher {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Uploads <= 0 {
		opts.Uploads = defaultUploads
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Publisher{
		store:   store,
		fs:      opts.Fs,
		root:    opts.Root,
		prefix:  opts.Prefix,
		uploads: opts.Uploads,
		logger:  opts.Logger.WithComponent("publish"),
	}
}

// Publish uploads every file under the root. The first failed upload
// cancels the rest.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	start := time.Now()
	files, err := p.collect()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "nothing to publish under "+p.root+"; run build first", nil)
	}

	perf := logging.StartOperation(p.logger, "publish", "root", p.root, "files", len(files))
	res := &Result{}
	var mu sync.Mutex

	g := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(p.uploads)
	for _, rel := range files {
		g.Go(func(ctx context.Context) error {
			key, n, err := p.upload(ctx, rel)
			if err != nil {
				return err
			}
			mu.Lock()
			res.Keys = append(res.Keys, key)
			res.Bytes += n
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	res.Duration = time.Since(start)
	if err != nil {
		perf.EndWithError(ctx, err)
		return res, err
	}

	perf.End(ctx, "bytes", res.Bytes)
	return res, nil
}

func (p *Publisher) collect() ([]string, error) {
	if _, err := p.fs.Stat(p.root); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "reading "+p.root, err)
	}

	var files []string
	err := afero.Walk(p.fs, p.root, func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, name)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "walking "+p.root, err)
	}
	return files, nil
}

func (p *Publisher) upload(ctx context.Context, rel string) (string, int64, error) {
	f, err := p.fs.Open(filepath.Join(p.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", 0, errors.NewIOError(errors.ErrCodeReadFailed, "opening "+rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, errors.NewIOError(errors.ErrCodeReadFailed, "stat "+rel, err)
	}

	key := ObjectKey(p.prefix, rel)
	if err := p.store.Put(ctx, key, f, info.Size(), ContentType(rel)); err != nil {
		se := errors.NewNetworkError(errors.ErrCodePublishFailed, "uploading "+key, err)
		se.FilePath = rel
		return "", 0, se
	}
	p.logger.Debug(ctx, "Uploaded", "key", key, "bytes", info.Size())
	return key, info.Size(), nil
}

// ObjectKey maps a root-relative path to its key under prefix.
func ObjectKey(prefix, rel string) string {
	rel = strings.TrimLeft(path.Clean("/"+filepath.ToSlash(rel)), "/")
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// ContentType guesses the media type from the extension.
func ContentType(rel string) string {
	if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
