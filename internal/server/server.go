package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

// CallbackServer is a short-lived HTTP server bound to the loopback redirect
// URI. It serves exactly one authorization callback and is then shut down.
type CallbackServer struct {
	srv     *http.Server
	handler *CallbackHandler
	path    string
	logger  *log.Logger
}

// NewCallbackServer builds a server for the given redirect URI,
// e.g. http://localhost:8888/callback.
func NewCallbackServer(redirectURI string, handler *CallbackHandler, logger *log.Logger) (*CallbackServer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	path := parsed.Path
	if path == "" {
		path = "/callback"
	}

	s := &CallbackServer{handler: handler, path: path, logger: logger}

	mux := http.NewServeMux()
	mux.Handle(path, s.logged(handler))

	s.srv = &http.Server{
		Addr:    parsed.Host,
		Handler: mux,
	}

	return s, nil
}

// Start begins listening in the background. Listener failures before the
// callback arrives surface through the handler's result channel.
func (s *CallbackServer) Start() {
	go func() {
		s.logger.Debug("callback server listening", "addr", s.srv.Addr, "path", s.path)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.handler.send(AuthResult{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
}

// Wait blocks until the callback completes or the context is done, then
// shuts the server down either way.
func (s *CallbackServer) Wait(ctx context.Context) AuthResult {
	defer s.shutdown()

	select {
	case result := <-s.handler.Result():
		return result
	case <-ctx.Done():
		return AuthResult{err: ctx.Err()}
	}
}

func (s *CallbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Debug("callback server shutdown", "error", err)
	}
}

// logged wraps a handler with request logging.
func (s *CallbackServer) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
