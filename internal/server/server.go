// Package server is the live-reload development server. It serves the dev
// output root, injects a reload client into HTML pages and pushes a message
// to every connected browser after each successful pipeline run.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/metrics"
)

// Reserved URL paths.
const (
	PathPrefix     = "/__siteforge/"
	ScriptPath     = PathPrefix + "livereload.js"
	SocketPath     = PathPrefix + "ws"
	StatusPath     = PathPrefix + "status"
	MetricsPath    = "/metrics"
	MessageReload  = "reload"
	MessageCSS     = "css"
	readHeaderWait = 10 * time.Second
)

// Options configures a DevServer.
type Options struct {
	Root   string
	Host   string
	Port   int
	Open   bool
	Logger logging.Logger
	// Recorder receives notification and session counts.
	Recorder metrics.Recorder
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Status feeds the status page when set.
	Status StatusSource
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *DevServer
}

// DevServer serves the output root with live reload.
type DevServer struct {
	opts         Options
	logger       logging.Logger
	recorder     metrics.Recorder
	httpServer   *http.Server
	serverMutex  sync.RWMutex
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	hubDone      chan struct{}
	hubOnce      sync.Once
	shutdownOnce sync.Once
	isShutdown   bool
	shutdownMu   sync.RWMutex
}

// UpdateMessage is sent to the browser after a successful run.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Paths     []string  `json:"paths,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a dev server. The hub starts with the first Handler or
// Notify call and runs until Shutdown.
func New(opts Options) *DevServer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &DevServer{
		opts:       opts,
		logger:     logger.WithComponent("server"),
		recorder:   recorder,
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
}

// Addr returns the listen address.
func (s *DevServer) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
}

// Handler returns the HTTP handler and starts the session hub.
func (s *DevServer) Handler() http.Handler {
	s.startHub()

	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.handleWebSocket)
	mux.HandleFunc(ScriptPath, handleScript)
	mux.Handle(StatusPath, s.statusHandler())
	if s.opts.Metrics != nil {
		mux.Handle(MetricsPath, s.opts.Metrics)
	}
	mux.Handle("/", s.staticHandler())
	return securityHeaders(mux)
}

// Start serves until the server is shut down.
func (s *DevServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *DevServer) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderWait,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	// Shutdown may have run before the server existed.
	s.shutdownMu.RLock()
	stopped := s.isShutdown
	s.shutdownMu.RUnlock()
	if stopped {
		return ln.Close()
	}

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Serving dev output", "url", url, "root", s.opts.Root)

	if s.opts.Open {
		go s.openBrowser(ctx, url)
	}

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Notify broadcasts one message to every session. It implements the
// pipeline notifier: a run whose outputs are all stylesheets swaps CSS in
// place, anything else reloads the page.
func (s *DevServer) Notify(ctx context.Context, paths []string) {
	s.shutdownMu.RLock()
	closed := s.isShutdown
	s.shutdownMu.RUnlock()
	if closed {
		return
	}

	s.startHub()
	msg := UpdateMessage{Type: MessageKind(paths), Paths: paths, Timestamp: time.Now()}
	s.broadcastMessage(ctx, msg)
}

func (s *DevServer) startHub() {
	s.hubOnce.Do(func() { go s.runWebSocketHub() })
}

// MessageKind picks the message type for a set of written paths.
func MessageKind(paths []string) string {
	if len(paths) == 0 {
		return MessageReload
	}
	for _, p := range paths {
		switch strings.ToLower(path.Ext(p)) {
		case ".css", ".map":
		default:
			return MessageReload
		}
	}
	return MessageCSS
}

// Sessions returns the number of connected browsers.
func (s *DevServer) Sessions() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Shutdown closes every session and stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.shutdownMu.Lock()
		s.isShutdown = true
		s.shutdownMu.Unlock()

		close(s.hubDone)

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()
		s.recorder.SetSessions(0)

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}

func (s *DevServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond)

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
	}
}
