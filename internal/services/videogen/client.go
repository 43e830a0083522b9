// Package videogen talks to the hosted text-to-video API: a generation is
// submitted, polled until it settles, and the rendered clip is downloaded.
package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/config"
	"reelforge/internal/segments"
	"reelforge/internal/services"
	"reelforge/internal/services/retry"
)

// BackendName identifies this backend in logs.
const BackendName = "videogen"

const (
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInterval = 5 * time.Second
	generationsPath     = "v1/generations"
)

// Generation states reported by the API.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Config captures the runtime settings for the video API.
type Config struct {
	APIKey              string
	BaseURL             string
	PollIntervalSeconds int
}

// ConfigFromApp maps the segments section onto client settings.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:              cfg.Segments.APIKey,
		BaseURL:             cfg.Segments.BaseURL,
		PollIntervalSeconds: cfg.Segments.PollIntervalSeconds,
	}
}

// Client implements segments.Backend.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	policy       retry.Policy
	pollInterval time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the per-request retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.policy.Attempts = attempts
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.policy.Sleeper = sleeper
	}
}

// WithPollInterval overrides the status polling cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient constructs a video generation client.
func NewClient(cfg Config, opts ...Option) *Client {
	interval := defaultPollInterval
	if cfg.PollIntervalSeconds > 0 {
		interval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	client := &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
		policy:       retry.Default(),
		pollInterval: interval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Name implements segments.Backend.
func (c *Client) Name() string { return BackendName }

type submitRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Quality         string `json:"quality"`
}

// Generation is the API's view of one render.
type Generation struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// Generate implements segments.Backend. It blocks until the clip is on disk
// or ctx ends.
func (c *Client) Generate(ctx context.Context, spec segments.Spec) (string, error) {
	if c == nil {
		return "", services.Wrap(services.ErrConfiguration, "segments", BackendName, "client unavailable", nil)
	}
	if strings.TrimSpace(c.cfg.BaseURL) == "" || strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "segments", BackendName, "base url and api key are required", nil)
	}

	gen, err := c.submit(ctx, spec)
	if err != nil {
		return "", err
	}
	gen, err = c.wait(ctx, gen)
	if err != nil {
		return "", err
	}
	if err := c.download(ctx, gen.VideoURL, spec.OutputPath); err != nil {
		return "", err
	}
	return spec.OutputPath, nil
}

func (c *Client) submit(ctx context.Context, spec segments.Spec) (Generation, error) {
	payload, err := json.Marshal(submitRequest{
		Prompt:          spec.Prompt,
		DurationSeconds: spec.DurationSeconds,
		AspectRatio:     spec.AspectRatio,
		Width:           spec.Width,
		Height:          spec.Height,
		Quality:         string(spec.Mode),
	})
	if err != nil {
		return Generation{}, fmt.Errorf("encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, generationsPath)
	if err != nil {
		return Generation{}, services.Wrap(services.ErrConfiguration, "segments", BackendName, "invalid base url", err)
	}

	// A submit that reached the server may already be billed, so only
	// explicit refusals are retried, all under one idempotency key.
	policy := c.policy
	policy.RejectedOnly = true
	key := uuid.NewString()
	var gen Generation
	err = policy.Do(ctx, func(int) error {
		return c.doJSON(ctx, http.MethodPost, endpoint, key, payload, &gen)
	})
	if err != nil {
		return Generation{}, classify("submit", err)
	}
	if strings.TrimSpace(gen.ID) == "" {
		return Generation{}, services.Wrap(services.ErrExternalTool, "segments", BackendName, "submit returned no generation id", nil)
	}
	return gen, nil
}

// Status fetches the current state of a generation.
func (c *Client) Status(ctx context.Context, id string) (Generation, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, generationsPath, id)
	if err != nil {
		return Generation{}, services.Wrap(services.ErrConfiguration, "segments", BackendName, "invalid base url", err)
	}
	var gen Generation
	err = c.policy.Do(ctx, func(int) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, "", nil, &gen)
	})
	if err != nil {
		return Generation{}, classify("status", err)
	}
	return gen, nil
}

func (c *Client) wait(ctx context.Context, gen Generation) (Generation, error) {
	for {
		switch gen.Status {
		case StateSucceeded:
			if strings.TrimSpace(gen.VideoURL) == "" {
				return Generation{}, services.Wrap(services.ErrExternalTool, "segments", BackendName, "generation finished without a video url", nil)
			}
			return gen, nil
		case StateFailed:
			return Generation{}, services.Wrap(services.ErrExternalTool, "segments", BackendName,
				fmt.Sprintf("generation %s failed: %s", gen.ID, strings.TrimSpace(gen.Error)), nil)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Generation{}, services.Wrap(services.ErrTimeout, "segments", BackendName, "generation did not finish in time", ctx.Err())
			}
			return Generation{}, ctx.Err()
		case <-timer.C:
		}

		next, err := c.Status(ctx, gen.ID)
		if err != nil {
			return Generation{}, err
		}
		if next.ID == "" {
			next.ID = gen.ID
		}
		gen = next
	}
}

func (c *Client) download(ctx context.Context, videoURL, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "segments", BackendName, "create output directory", err)
	}
	err := c.policy.Do(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("download request: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return retry.NewStatusError("download", resp, body)
		}
		return writeFile(outPath, resp.Body)
	})
	if err != nil {
		return classify("download", err)
	}
	return nil
}

func writeFile(path string, src io.Reader) error {
	tmp := path + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		return errors.Join(copyErr, closeErr)
	}
	if written == 0 {
		_ = os.Remove(tmp)
		return errors.New("downloaded clip is empty")
	}
	return os.Rename(tmp, path)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint, idempotencyKey string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("videogen request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.NewStatusError("videogen", resp, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classify(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "segments", BackendName, operation, err)
	}
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "segments", BackendName, operation+": credentials rejected", err)
		case statusErr.Temporary():
			return services.Wrap(services.ErrTransient, "segments", BackendName, operation, err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "segments", BackendName, operation, err)
}
