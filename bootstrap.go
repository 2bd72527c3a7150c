package convai

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/siwaht/convai/shared"
	"github.com/valyala/fasthttp"
)

// SignedURLProvider resolves an agent id to a time-limited socket
// endpoint. Absence of a URL is a hard failure before any socket is
// opened.
type SignedURLProvider interface {
	SignedURL(ctx context.Context, agentID string) (string, error)
}

// HTTPBootstrap is the REST client for the provider's signed-URL
// endpoint.
type HTTPBootstrap struct {
	baseURL *url.URL
	apiKey  string
}

var _ SignedURLProvider = (*HTTPBootstrap)(nil)

func NewHTTPBootstrap(baseURL, apiKey string) (*HTTPBootstrap, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing api key", shared.ErrIntegrationInactive)
	}
	var parsed *url.URL
	var err error
	if baseURL != "" {
		parsed, err = url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing base URL: %w", err)
		}
	} else {
		parsed = &url.URL{
			Scheme: "https",
			Host:   "api.elevenlabs.io",
			Path:   "/v1",
		}
	}
	return &HTTPBootstrap{baseURL: parsed, apiKey: apiKey}, nil
}

func (b *HTTPBootstrap) SignedURL(ctx context.Context, agentID string) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	target := b.baseURL.JoinPath("/convai/conversation/get-signed-url")
	q := target.Query()
	q.Set("agent_id", agentID)
	target.RawQuery = q.Encode()

	req.SetRequestURI(target.String())
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("xi-api-key", b.apiKey)

	type response struct {
		status int
		body   []byte
		err    error
	}
	// The pooled req/resp stay owned by this goroutine until Do returns;
	// releasing them earlier would hand them back mid-flight. The channel
	// is buffered so the goroutine exits even after a cancellation.
	resC := make(chan response, 1)
	go func() {
		res := response{err: fasthttp.Do(req, resp)}
		if res.err == nil {
			res.status = resp.StatusCode()
			res.body = append([]byte(nil), resp.Body()...)
		}
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
		resC <- res
	}()
	var res response
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-resC:
		if res.err != nil {
			return "", fmt.Errorf("performing HTTP request: %w", res.err)
		}
	}
	if res.status != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s",
			shared.ErrIntegrationInactive, res.status, string(res.body))
	}
	var body struct {
		SignedURL string `json:"signed_url"`
	}
	if err := sonic.Unmarshal(res.body, &body); err != nil {
		return "", fmt.Errorf("unmarshaling signed URL response: %w", err)
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed URL", shared.ErrIntegrationInactive)
	}
	return body.SignedURL, nil
}
