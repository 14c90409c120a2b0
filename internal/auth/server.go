package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/semmy-space/dirctl/internal/logging"
)

// CallbackFunc completes a login from the state and code of a redirect.
type CallbackFunc func(ctx context.Context, state, code string) error

// CallbackServer receives OAuth redirects on a fixed port. The port must match
// the redirect URI registered for the application, so there is no fallback
// to another port.
type CallbackServer struct {
	port     int
	path     string
	callback CallbackFunc

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// NewCallbackServer creates a listener for redirects to path on port.
// Port 0 picks a free port, which is only useful in tests.
func NewCallbackServer(port int, path string, callback CallbackFunc) *CallbackServer {
	if path == "" {
		path = "/oauth/callback"
	}
	return &CallbackServer{port: port, path: path, callback: callback, logger: logging.Discard()}
}

// Start begins serving. Calling Start on a running server does nothing.
func (s *CallbackServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to start callback server on port %d: %w", s.port, err)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s)

	s.listener = listener
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger := logging.FromContext(ctx)
	s.logger = logger
	logger.Info("OAuth callback server listening", "addr", listener.Addr().String(), "path", s.path)

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("OAuth callback server stopped", "error", err)
		}
	}(s.server)

	return nil
}

// Running reports whether the server is accepting redirects.
func (s *CallbackServer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

// Addr returns the listening address, or "" when stopped.
func (s *CallbackServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server. It is safe to call on a stopped server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *CallbackServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if oauthErr := query.Get("error"); oauthErr != "" {
		if desc := query.Get("error_description"); desc != "" {
			oauthErr += ": " + desc
		}
		writePage(w, http.StatusBadRequest, "Authentication Failed", "OAuth error: "+oauthErr)
		return
	}

	code := query.Get("code")
	if code == "" {
		writePage(w, http.StatusBadRequest, "Authentication Failed", "Missing authorization code.")
		return
	}

	s.mu.Lock()
	logger := s.logger
	s.mu.Unlock()

	ctx := logging.NewContext(r.Context(), logger)
	if err := s.callback(ctx, query.Get("state"), code); err != nil {
		logger.Warn("OAuth callback failed", "error", err)
		writePage(w, http.StatusInternalServerError, "Authentication Failed", "Token exchange failed: "+err.Error())
		return
	}

	writePage(w, http.StatusOK, "Authentication Successful", "You can close this window and return to your client.")
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%[1]s</title></head>
<body>
<h1>%[1]s</h1>
<p>%[2]s</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}
