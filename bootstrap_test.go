package convai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/siwaht/convai/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPBootstrap(t *testing.T) {
	t.Run("Missing API key", func(t *testing.T) {
		_, err := NewHTTPBootstrap("", "")
		assert.ErrorIs(t, err, shared.ErrIntegrationInactive)
	})

	t.Run("Default base URL", func(t *testing.T) {
		b, err := NewHTTPBootstrap("", "key")
		require.NoError(t, err)
		assert.Equal(t, "https://api.elevenlabs.io/v1", b.baseURL.String())
	})
}

func TestHTTPBootstrapSignedURL(t *testing.T) {
	var gotAgentID, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgentID = r.URL.Query().Get("agent_id")
		gotAPIKey = r.Header.Get("xi-api-key")
		assert.Equal(t, "/v1/convai/conversation/get-signed-url", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signed_url":"wss://example.test/socket?token=abc"}`))
	}))
	defer srv.Close()

	b, err := NewHTTPBootstrap(srv.URL+"/v1", "secret-key")
	require.NoError(t, err)

	signed, err := b.SignedURL(context.Background(), "agent-123")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.test/socket?token=abc", signed)
	assert.Equal(t, "agent-123", gotAgentID)
	assert.Equal(t, "secret-key", gotAPIKey)
}

func TestHTTPBootstrapSignedURLFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "Unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"detail":"invalid api key"}`,
			wantErr: shared.ErrIntegrationInactive,
		},
		{
			name:    "Agent not found",
			status:  http.StatusNotFound,
			body:    `{"detail":"agent not found"}`,
			wantErr: shared.ErrIntegrationInactive,
		},
		{
			name:    "Empty signed URL",
			status:  http.StatusOK,
			body:    `{"signed_url":""}`,
			wantErr: shared.ErrIntegrationInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			b, err := NewHTTPBootstrap(srv.URL, "key")
			require.NoError(t, err)
			_, err = b.SignedURL(context.Background(), "agent-123")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPBootstrapSignedURLContextCanceled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"signed_url":"wss://example.test/socket"}`))
	}))
	defer srv.Close()

	b, err := NewHTTPBootstrap(srv.URL, "key")
	require.NoError(t, err)

	before := runtime.NumGoroutine()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = b.SignedURL(ctx, "agent-123")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Once the server answers, the request goroutine must finish instead
	// of staying parked on its result send forever.
	close(release)
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, 2*time.Second, 20*time.Millisecond, "request goroutine never exited")
}

func TestHTTPBootstrapSignedURLMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	b, err := NewHTTPBootstrap(srv.URL, "key")
	require.NoError(t, err)
	_, err = b.SignedURL(context.Background(), "agent-123")
	assert.Error(t, err)
}
