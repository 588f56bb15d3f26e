// internal/common/http/client_test.go
package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SetsDefaultUserAgent(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.DoWithContext(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "dca-platform", gotAgent)
}

func TestClient_KeepsExplicitUserAgent(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClient(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "dca-platform-seeder")

	resp, err := c.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "dca-platform-seeder", gotAgent)
}

func TestNewClient_DefaultsTimeout(t *testing.T) {
	c := NewClient(0)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}
