package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reelforge/internal/config"
)

const userAgent = "Reelforge-Go/0.1.0"

// Service defines the notification surface exposed to the production runner
// and the budget ledger.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID, title string, cost decimal.Decimal, remoteRef string) error
	NotifyJobFailed(ctx context.Context, jobID, title, reason string) error
	NotifyBudgetWarning(ctx context.Context, day string, spent, limit decimal.Decimal) error
	NotifyBudgetExceeded(ctx context.Context, day string, spent, limit decimal.Decimal) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		jobs:     cfg.Notifications.Jobs,
		budget:   cfg.Notifications.Budget,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	jobs     bool
	budget   bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID, title string, cost decimal.Decimal, remoteRef string) error {
	if !n.jobs {
		return nil
	}
	message := fmt.Sprintf("✅ Video ready: %s\nCost: $%s", displayTitle(title, jobID), cost.StringFixed(2))
	if remoteRef = strings.TrimSpace(remoteRef); remoteRef != "" {
		message += "\n" + remoteRef
	}
	return n.send(ctx, payload{
		title:   "Reelforge - Video Produced",
		message: message,
		tags:    []string{"reelforge", "production", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID, title, reason string) error {
	if !n.jobs {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.send(ctx, payload{
		title:    "Reelforge - Production Failed",
		message:  fmt.Sprintf("❌ Production failed: %s\n%s", displayTitle(title, jobID), reason),
		tags:     []string{"reelforge", "production", "failed"},
		priority: "high",
	})
}

func (n *ntfyService) NotifyBudgetWarning(ctx context.Context, day string, spent, limit decimal.Decimal) error {
	if !n.budget {
		return nil
	}
	return n.send(ctx, payload{
		title:   "Reelforge - Budget Warning",
		message: fmt.Sprintf("⚠️ %s: spent $%s of $%s (%s%%)", day, spent.StringFixed(2), limit.StringFixed(2), percent(spent, limit)),
		tags:    []string{"reelforge", "budget", "warning"},
	})
}

func (n *ntfyService) NotifyBudgetExceeded(ctx context.Context, day string, spent, limit decimal.Decimal) error {
	if !n.budget {
		return nil
	}
	return n.send(ctx, payload{
		title:    "Reelforge - Budget Exceeded",
		message:  fmt.Sprintf("🛑 %s: spent $%s, daily limit $%s", day, spent.StringFixed(2), limit.StringFixed(2)),
		tags:     []string{"reelforge", "budget", "alert"},
		priority: "urgent",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Reelforge - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"reelforge", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func displayTitle(title, jobID string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	return "job " + strings.TrimSpace(jobID)
}

func percent(spent, limit decimal.Decimal) string {
	if !limit.IsPositive() {
		return "100"
	}
	return spent.Div(limit).Mul(decimal.NewFromInt(100)).Round(0).String()
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, decimal.Decimal, string) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, string, string, string) error { return nil }
func (noopService) NotifyBudgetWarning(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return nil
}
func (noopService) NotifyBudgetExceeded(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
