package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/oauth2"
)

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// ExchangeFunc trades an authorization code for tokens.
type ExchangeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>mixtape: {{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .box { text-align: center; background: white; padding: 2rem; border-radius: 8px; }
        h1 { margin: 0 0 1rem 0; color: {{if .OK}}#1DB954{{else}}#E22134{{end}}; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="box">
        <h1>{{.Title}}</h1>
        <p>{{.Detail}}</p>
    </div>
</body>
</html>
`))

type callbackView struct {
	OK     bool
	Title  string
	Detail string
}

// OAuthHandler serves the redirect of an authorization code flow.
//
// Only the first callback is honoured; its outcome is delivered once on [OAuthHandler.Result].
type OAuthHandler struct {
	exchange ExchangeFunc
	state    string
	results  chan OAuthResult

	mu   sync.Mutex
	hit  bool
	once sync.Once
}

// NewOAuthHandler creates a handler that checks state and redeems codes with exchange.
// The state token should be cryptographically random for CSRF protection.
func NewOAuthHandler(exchange ExchangeFunc, state string) *OAuthHandler {
	return &OAuthHandler{
		exchange: exchange,
		state:    state,
		results:  make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// claim reports whether this is the first callback.
func (h *OAuthHandler) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hit {
		return false
	}
	h.hit = true
	return true
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.claim() {
		render(w, http.StatusBadRequest, callbackView{Title: "Callback already processed", Detail: "Return to the terminal."})
		return
	}

	query := r.URL.Query()
	if query.Get("state") != h.state {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed))
		return
	}

	code := query.Get("code")
	if code == "" {
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description")))
		return
	}

	token, err := h.exchange(r.Context(), code)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, fmt.Errorf("token exchange failed: %w", err))
		return
	}

	h.Send(OAuthResult{Token: token})
	render(w, http.StatusOK, callbackView{
		OK:     true,
		Title:  "✓ Authorization Successful",
		Detail: "You can close this window and return to the terminal.",
	})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error) {
	h.Send(OAuthResult{err: err})
	render(w, status, callbackView{Title: "Authorization failed", Detail: err.Error()})
}

func render(w http.ResponseWriter, status int, view callbackView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackPage.Execute(w, view)
}

// Send delivers result to [OAuthHandler.Result]. Only the first call has an effect.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result returns the channel that receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}
