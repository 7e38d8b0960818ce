package httpx

import (
	"fmt"
	"net/http"
	"sync"
)

const HeaderCSRFToken = "X-Csrf-Token"

// CSRFRoundTripper attaches a session cookie and the last known CSRF token to
// every request. When the server rejects a request with 403 and hands out a
// fresh token, the request is replayed once with that token.
type CSRFRoundTripper struct {
	next   http.RoundTripper
	cookie string

	mu    *sync.RWMutex
	token *string
}

func NewCSRFRoundTripper(next http.RoundTripper, cookie string) CSRFRoundTripper {
	return CSRFRoundTripper{
		next:   next,
		cookie: cookie,
		mu:     &sync.RWMutex{},
		token:  new(string),
	}
}

func (rt CSRFRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	rt.setHeaders(req)

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("next.RoundTrip: %w", err)
	}

	fresh := resp.Header.Get(HeaderCSRFToken)
	if resp.StatusCode != http.StatusForbidden || fresh == "" || fresh == rt.Token() {
		return resp, nil
	}

	rt.mu.Lock()
	*rt.token = fresh
	rt.mu.Unlock()

	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return resp, nil
		}

		body, err := req.GetBody()
		if err != nil {
			return resp, nil //nolint:nilerr // original response is still meaningful
		}

		req.Body = body
	}

	resp.Body.Close()

	rt.setHeaders(req)

	return rt.next.RoundTrip(req) //nolint:wrapcheck
}

func (rt CSRFRoundTripper) Token() string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	return *rt.token
}

func (rt CSRFRoundTripper) setHeaders(req *http.Request) {
	if rt.cookie != "" {
		req.Header.Set("Cookie", rt.cookie)
	}

	if token := rt.Token(); token != "" {
		req.Header.Set(HeaderCSRFToken, token)
	}
}
