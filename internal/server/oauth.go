// package server runs the loopback HTTP listener for the authorization code flow
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// ExchangeFunc trades an authorization code for a token.
type ExchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

// AuthResult is the outcome of one authorization callback.
type AuthResult struct {
	Token *oauth2.Token
	err   error
}

func (r AuthResult) Error() error {
	return r.err
}

// CallbackHandler serves the OAuth2 redirect endpoint.
//
// Validates the state parameter against the one sent with the authorization
// URL, exchanges the code, and delivers the result through a channel. Only
// the first callback is processed; replays get a 400.
type CallbackHandler struct {
	exchange ExchangeFunc
	state    string

	result chan AuthResult
	once   sync.Once
	mu     sync.Mutex
	hit    bool
}

// NewCallbackHandler creates a handler expecting the given state token.
// The state should be cryptographically random for CSRF protection.
func NewCallbackHandler(exchange ExchangeFunc, state string) *CallbackHandler {
	return &CallbackHandler{
		exchange: exchange,
		state:    state,
		result:   make(chan AuthResult, 1),
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.hit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.hit = true
	h.mu.Unlock()

	if state := r.URL.Query().Get("state"); state != h.state {
		h.send(AuthResult{err: fmt.Errorf("invalid state parameter")})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		errDesc := r.URL.Query().Get("error_description")
		h.send(AuthResult{err: fmt.Errorf("authorization failed: %s - %s", errParam, errDesc)})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.exchange(r.Context(), code)
	if err != nil {
		h.send(AuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "Token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(AuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

// send delivers the result exactly once and closes the channel.
func (h *CallbackHandler) send(result AuthResult) {
	h.once.Do(func() {
		h.result <- result
		close(h.result)
	})
}

// Result returns the channel carrying the single callback outcome.
func (h *CallbackHandler) Result() <-chan AuthResult {
	return h.result
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #fa2d48; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization Successful</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
