package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"reelforge/internal/config"
	"reelforge/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), "job-1", "Title", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should yield noop, got %v", err)
	}
}

type captured struct {
	calls    int
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, into *captured) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		into.calls++
		into.title = r.Header.Get("Title")
		into.tags = r.Header.Get("Tags")
		into.priority = r.Header.Get("Priority")
		body, _ := io.ReadAll(r.Body)
		into.body = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	spent := decimal.RequireFromString("8.5")
	limit := decimal.RequireFromString("10")
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "job completed",
			send: func(s notifications.Service) error {
				return s.NotifyJobCompleted(context.Background(), "job-1", "Morning routines", decimal.RequireFromString("1.25"), "s3://videos/productions/job-1/final.mp4")
			},
			expectTitle:   "Reelforge - Video Produced",
			expectMessage: "✅ Video ready: Morning routines\nCost: $1.25\ns3://videos/productions/job-1/final.mp4",
			expectTags:    "reelforge,production,completed",
		},
		{
			name: "job failed without title",
			send: func(s notifications.Service) error {
				return s.NotifyJobFailed(context.Background(), "job-2", "", "all segments failed")
			},
			expectTitle:    "Reelforge - Production Failed",
			expectMessage:  "❌ Production failed: job job-2\nall segments failed",
			expectTags:     "reelforge,production,failed",
			expectPriority: "high",
		},
		{
			name: "budget warning",
			send: func(s notifications.Service) error {
				return s.NotifyBudgetWarning(context.Background(), "2026-06-15", spent, limit)
			},
			expectTitle:   "Reelforge - Budget Warning",
			expectMessage: "⚠️ 2026-06-15: spent $8.50 of $10.00 (85%)",
			expectTags:    "reelforge,budget,warning",
		},
		{
			name: "budget exceeded",
			send: func(s notifications.Service) error {
				return s.NotifyBudgetExceeded(context.Background(), "2026-06-15", decimal.RequireFromString("10.25"), limit)
			},
			expectTitle:    "Reelforge - Budget Exceeded",
			expectMessage:  "🛑 2026-06-15: spent $10.25, daily limit $10.00",
			expectTags:     "reelforge,budget,alert",
			expectPriority: "urgent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got captured
			server := newCaptureServer(t, &got)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Jobs = true
			cfg.Notifications.Budget = true

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsToggles(t *testing.T) {
	var got captured
	server := newCaptureServer(t, &got)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Jobs = false
	cfg.Notifications.Budget = false
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	_ = svc.NotifyJobCompleted(ctx, "j", "t", decimal.Zero, "")
	_ = svc.NotifyJobFailed(ctx, "j", "t", "r")
	_ = svc.NotifyBudgetWarning(ctx, "d", decimal.Zero, decimal.Zero)
	_ = svc.NotifyBudgetExceeded(ctx, "d", decimal.Zero, decimal.Zero)
	if got.calls != 0 {
		t.Fatalf("expected suppressed events, got %d calls", got.calls)
	}
	if err := svc.TestNotification(ctx); err != nil || got.calls != 1 {
		t.Fatalf("test notification should always send: err=%v calls=%d", err, got.calls)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if err := notifications.NewService(&cfg).TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
