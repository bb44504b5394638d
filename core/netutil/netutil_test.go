package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://x", Err: timeoutErr{}}))
	assert.True(t, ShouldRetry(fmt.Errorf("wrapped: %w", timeoutErr{})))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "", ClassifyError(nil))
	assert.Equal(t, "timeout", ClassifyError(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "dial", ClassifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "dns", ClassifyError(&net.DNSError{Err: "no such host", Name: "x"}))
	assert.Equal(t, "unknown", ClassifyError(errors.New("boom")))
}

func TestSanitizeError(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:ABC-def/sendMessage": Bearer EAAG.x-y failed access_token=zzz&x=1`)
	got := SanitizeError(err)
	assert.NotContains(t, got, "ABC-def")
	assert.NotContains(t, got, "EAAG")
	assert.NotContains(t, got, "zzz")
	assert.Contains(t, got, "bot<redacted>")
	assert.Contains(t, got, "Bearer <redacted>")
}

type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	}
	return f.next.RoundTrip(req)
}

func TestRetryTransportRetriesDialFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	flaky := &flakyTransport{failures: 2, next: http.DefaultTransport}
	client := BuildHTTPClient(ClientOptions{Base: flaky, RetryBackoff: time.Millisecond})

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("payload"))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestRetryTransportGivesUp(t *testing.T) {
	flaky := &flakyTransport{failures: 10, next: http.DefaultTransport}
	client := BuildHTTPClient(ClientOptions{Base: flaky, MaxRetries: 2, RetryBackoff: time.Millisecond})
	_, err := client.Get("http://127.0.0.1:1/")
	require.Error(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

type stallingTransport struct {
	calls atomic.Int32
}

func (s *stallingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls.Add(1)
	return nil, timeoutErr{}
}

func TestRetryTransportDoesNotResendPostAfterTimeout(t *testing.T) {
	stall := &stallingTransport{}
	client := BuildHTTPClient(ClientOptions{Base: stall, MaxRetries: 3, RetryBackoff: time.Millisecond})

	req, err := http.NewRequest(http.MethodPost, "http://gateway.invalid/orders", strings.NewReader(`{"amount":100}`))
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	assert.Equal(t, int32(1), stall.calls.Load())
}

func TestRetryTransportRetriesGetAfterTimeout(t *testing.T) {
	stall := &stallingTransport{}
	client := BuildHTTPClient(ClientOptions{Base: stall, MaxRetries: 2, RetryBackoff: time.Millisecond})

	_, err := client.Get("http://gateway.invalid/media")
	require.Error(t, err)
	assert.Equal(t, int32(3), stall.calls.Load())
}
