package gateway

import (
	"context"
	"net/http"
	"net/url"
)

// forwardedHeaders are copied from the client request to the upstream.
var forwardedHeaders = []string{"Content-Type", "Accept", "Idempotency-Key"}

// Upstream is one backend service behind the gateway.
type Upstream struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewUpstream(name, baseURL string, client *http.Client) *Upstream {
	return &Upstream{
		name:    name,
		baseURL: baseURL,
		client:  client,
	}
}

func (u *Upstream) Name() string { return u.name }

// Forward replays r against the upstream, keeping its path and query.
func (u *Upstream) Forward(ctx context.Context, r *http.Request) (*http.Response, error) {
	target, err := url.Parse(u.baseURL)
	if err != nil {
		return nil, err
	}
	target = target.JoinPath(r.URL.Path)
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}

	for _, name := range forwardedHeaders {
		if value := r.Header.Get(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	return u.client.Do(req)
}
