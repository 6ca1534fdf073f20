package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

// Copy passes files through, re-rooting them by trimming prefix from their
// path (just_images/a.png becomes a.png under the images directory).
func Copy(prefix string) pipeline.Stage {
	return pipeline.Map("copy", func(_ context.Context, f pipeline.File) (pipeline.File, error) {
		f.Path = trimDir(f.Path, prefix)
		return f, nil
	})
}

func trimDir(rel, dir string) string {
	if dir == "" || dir == "." {
		return rel
	}
	return strings.TrimPrefix(rel, strings.TrimSuffix(dir, "/")+"/")
}

var tinifiable = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// TinyPNG compresses images through the Tinify API.
type TinyPNG struct {
	key      string
	endpoint string
	client   *http.Client
}

// NewTinyPNG creates a client for the shrink endpoint. An empty key makes
// the stage a plain copy.
func NewTinyPNG(key, endpoint string, client *http.Client) *TinyPNG {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TinyPNG{key: key, endpoint: endpoint, client: client}
}

// Enabled reports whether an API key is configured.
func (t *TinyPNG) Enabled() bool { return t.key != "" }

// Stage returns the optimize stage, re-rooting files like Copy.
func (t *TinyPNG) Stage(prefix string) pipeline.Stage {
	return pipeline.Map("tinypng", func(ctx context.Context, f pipeline.File) (pipeline.File, error) {
		f.Path = trimDir(f.Path, prefix)
		if !t.Enabled() || !tinifiable[f.Ext()] {
			return f, nil
		}
		out, err := t.Shrink(ctx, f.Data)
		if err != nil {
			var se *errors.SiteError
			if errors.As(err, &se) {
				se.FilePath = f.Source
			}
			return f, err
		}
		f.Data = out
		return f, nil
	})
}

type shrinkResponse struct {
	Output struct {
		Size int64  `json:"size"`
		URL  string `json:"url"`
	} `json:"output"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Shrink uploads data and downloads the compressed result.
func (t *TinyPNG) Shrink(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "building shrink request", err)
	}
	req.SetBasicAuth("api", t.key)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "calling image optimizer", err)
	}
	defer resp.Body.Close()

	var sr shrinkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed,
			fmt.Sprintf("decoding optimizer response (status %d)", resp.StatusCode), err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed,
			fmt.Sprintf("image optimizer returned %d: %s %s", resp.StatusCode, sr.Error, sr.Message), nil)
	}

	location := sr.Output.URL
	if location == "" {
		location = resp.Header.Get("Location")
	}
	if location == "" {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "image optimizer returned no output location", nil)
	}

	get, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "building download request", err)
	}
	get.SetBasicAuth("api", t.key)

	out, err := t.client.Do(get)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "downloading optimized image", err)
	}
	defer out.Body.Close()

	if out.StatusCode != http.StatusOK {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed,
			fmt.Sprintf("image download returned %d", out.StatusCode), nil)
	}

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeOptimizerFailed, "reading optimized image", err)
	}
	return body, nil
}
