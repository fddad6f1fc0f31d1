package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/channelhub/backend/internal/domain/sync"
)

const (
	// defaultTimeout bounds every platform API call
	defaultTimeout = 30 * time.Second
	// maxResponseSize limits response bodies to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024
	// defaultPageSize is used when the caller does not bound a fetch
	defaultPageSize = 50
)

// newRestyClient builds the HTTP client shared by all adapters. Retries are
// left to the job queue; the client itself only bounds each attempt.
func newRestyClient() *resty.Client {
	return resty.New().
		SetTransport(limitedTransport{rt: http.DefaultTransport, max: maxResponseSize}).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
}

// limitedTransport caps how much of a platform response is read into
// memory. An oversized body surfaces as a read error instead of an
// unbounded allocation.
type limitedTransport struct {
	rt  http.RoundTripper
	max int64
}

func (t limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.rt.RoundTrip(req)
	if err == nil && resp.Body != nil {
		resp.Body = http.MaxBytesReader(nil, resp.Body, t.max)
	}
	return resp, err
}

// wrapTransportErr folds a transport-level failure into an AdapterError with
// status 0, which callers treat as retryable.
func wrapTransportErr(platform sync.Platform, err error) error {
	return sync.NewAdapterError(platform, 0, err.Error())
}

// apiErr folds a non-2xx platform response into an AdapterError. The raw
// body is truncated so provider payloads never flood logs or job records.
func apiErr(platform sync.Platform, resp *resty.Response) error {
	body := resp.String()
	if len(body) > 512 {
		body = body[:512]
	}
	return sync.NewAdapterError(platform, resp.StatusCode(), body)
}

// hmacSHA256Base64 computes the base64 HMAC-SHA256 of message under secret
func hmacSHA256Base64(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// verifyHMACBase64 checks a base64 HMAC-SHA256 signature in constant time
func verifyHMACBase64(secret string, message []byte, signature string) bool {
	if signature == "" {
		return false
	}
	expected := hmacSHA256Base64(secret, message)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// clampPageSize bounds a requested page size to [1, max]
func clampPageSize(requested, max int) int {
	if requested <= 0 {
		return defaultPageSize
	}
	if requested > max {
		return max
	}
	return requested
}
