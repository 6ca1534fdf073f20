package transform

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

func TestCopyTrimsPrefix(t *testing.T) {
	out := apply(t, Copy(""), "downloads/cv.pdf", "pdf")
	assert.Equal(t, "pdf", out)

	files, err := Copy("just_images").Apply(context.Background(), []pipeline.File{{Path: "just_images/icons/a.svg"}})
	require.NoError(t, err)
	assert.Equal(t, "icons/a.svg", files[0].Path)
}

func tinifyServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/shrink", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "secret", pass)

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "big-image", string(body))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusCreated {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"Credentials are invalid."}`))
			return
		}
		w.Header().Set("Location", srv.URL+"/output/abc")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"input":{"size":9},"output":{"size":5}}`))
	})
	mux.HandleFunc("/output/abc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("small"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTinyPNGShrink(t *testing.T) {
	srv := tinifyServer(t, http.StatusCreated)
	tp := NewTinyPNG("secret", srv.URL+"/shrink", srv.Client())
	require.True(t, tp.Enabled())

	files, err := tp.Stage("tiny_images").Apply(context.Background(), []pipeline.File{
		{Path: "tiny_images/hero.png", Source: "tiny_images/hero.png", Data: []byte("big-image")},
		{Path: "tiny_images/logo.svg", Source: "tiny_images/logo.svg", Data: []byte("<svg/>")},
	})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "hero.png", files[0].Path)
	assert.Equal(t, "small", string(files[0].Data))
	assert.Equal(t, "<svg/>", string(files[1].Data))
}

func TestTinyPNGError(t *testing.T) {
	srv := tinifyServer(t, http.StatusUnauthorized)
	tp := NewTinyPNG("secret", srv.URL+"/shrink", srv.Client())

	_, err := tp.Stage("tiny_images").Apply(context.Background(), []pipeline.File{
		{Path: "tiny_images/hero.png", Source: "tiny_images/hero.png", Data: []byte("big-image")},
	})
	require.Error(t, err)

	var se *errors.SiteError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.ErrorTypeNetwork, se.Type)
	assert.Equal(t, "tiny_images/hero.png", se.FilePath)
	assert.Contains(t, se.Message, "401")
}

func TestTinyPNGDisabledCopies(t *testing.T) {
	tp := NewTinyPNG("", "http://127.0.0.1:0/shrink", nil)
	assert.False(t, tp.Enabled())

	files, err := tp.Stage("tiny_images").Apply(context.Background(), []pipeline.File{{Path: "tiny_images/a.jpg", Data: []byte("jpg")}})
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", files[0].Path)
	assert.Equal(t, "jpg", string(files[0].Data))
}
