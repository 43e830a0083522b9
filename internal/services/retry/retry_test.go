package retry

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestDelayRetriesTemporaryStatuses(t *testing.T) {
	p := Policy{Attempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	ctx := context.Background()

	cases := []struct {
		status int
		retry  bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		_, retry := p.Delay(ctx, &StatusError{Op: "test", StatusCode: tc.status}, 1)
		if retry != tc.retry {
			t.Fatalf("status %d: retry=%v want %v", tc.status, retry, tc.retry)
		}
	}
}

func TestRejectedOnlyPolicy(t *testing.T) {
	p := Policy{Attempts: 4, BaseDelay: time.Millisecond, RejectedOnly: true}
	ctx := context.Background()

	cases := []struct {
		name  string
		err   error
		retry bool
	}{
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"unavailable", &StatusError{StatusCode: http.StatusServiceUnavailable}, true},
		{"server error", &StatusError{StatusCode: http.StatusInternalServerError}, false},
		{"gateway timeout", &StatusError{StatusCode: http.StatusGatewayTimeout}, false},
		{"network timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, false},
	}
	for _, tc := range cases {
		if _, retry := p.Delay(ctx, tc.err, 1); retry != tc.retry {
			t.Fatalf("%s: retry=%v want %v", tc.name, retry, tc.retry)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestBackoffDoublesAndCaps(t *testing.T) {
	p := Policy{Attempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	err := &StatusError{StatusCode: http.StatusServiceUnavailable}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, expected := range want {
		got, ok := p.Delay(context.Background(), err, i+1)
		if !ok || got != expected {
			t.Fatalf("attempt %d: got %v ok=%v want %v", i+1, got, ok, expected)
		}
	}
}

func TestRetryAfterHonored(t *testing.T) {
	p := Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Second}
	got, ok := p.Delay(context.Background(), &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 2 * time.Second}, 1)
	if !ok || got != 2*time.Second {
		t.Fatalf("expected Retry-After delay, got %v ok=%v", got, ok)
	}
	if d, ok := ParseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("ParseRetryAfter(3) = %v %v", d, ok)
	}
	if _, ok := ParseRetryAfter("soon"); ok {
		t.Fatal("expected invalid Retry-After to be ignored")
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var slept []time.Duration
	p := Policy{Attempts: 5, BaseDelay: 10 * time.Millisecond, Sleeper: func(d time.Duration) { slept = append(slept, d) }}
	calls := 0
	err := p.Do(context.Background(), func(int) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return &StatusError{StatusCode: http.StatusForbidden}
	})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden error, got %v", err)
	}
	if calls != 3 || len(slept) != 2 {
		t.Fatalf("calls=%d sleeps=%d", calls, len(slept))
	}
}

func TestDelayStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := Default().Delay(ctx, &StatusError{StatusCode: http.StatusBadGateway}, 1); ok {
		t.Fatal("cancelled context must not retry")
	}
}
