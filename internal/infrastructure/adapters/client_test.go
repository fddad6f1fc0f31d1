package adapters

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitedTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 1024))
	}))
	defer server.Close()

	t.Run("oversized body is a read error", func(t *testing.T) {
		client := resty.NewWithClient(&http.Client{
			Transport: limitedTransport{rt: http.DefaultTransport, max: 64},
		})

		_, err := client.R().Get(server.URL)
		require.Error(t, err)
		assert.ErrorContains(t, err, "too large")
	})

	t.Run("body under the limit passes through", func(t *testing.T) {
		client := resty.NewWithClient(&http.Client{
			Transport: limitedTransport{rt: http.DefaultTransport, max: 4096},
		})

		resp, err := client.R().Get(server.URL)
		require.NoError(t, err)
		assert.Len(t, resp.Body(), 1024)
	})
}
