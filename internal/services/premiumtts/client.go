// Package premiumtts is the billed narration provider: an HTTP text-to-speech
// API that answers with raw audio bytes.
package premiumtts

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

	"reelforge/internal/config"
	"reelforge/internal/narration"
	"reelforge/internal/pricing"
	"reelforge/internal/services"
	"reelforge/internal/services/retry"
)

// ProviderName identifies premium narration in job records.
const ProviderName = "premium-tts"

const (
	defaultHTTPTimeout = 60 * time.Second
	defaultModel       = "eleven_multilingual_v2"
	apiKeyHeader       = "xi-api-key"
)

// Config captures the runtime settings for the premium voice API.
type Config struct {
	APIKey         string
	BaseURL        string
	VoiceID        string
	Model          string
	FFprobeBinary  string
	TimeoutSeconds int
}

// ConfigFromApp maps the narration section onto client settings.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:         cfg.Narration.PremiumAPIKey,
		BaseURL:        cfg.Narration.PremiumBaseURL,
		VoiceID:        cfg.Narration.PremiumVoiceID,
		FFprobeBinary:  cfg.FFprobeBinary(),
		TimeoutSeconds: cfg.Narration.TimeoutSeconds,
	}
}

// Client renders narration through the premium API.
type Client struct {
	cfg        Config
	catalog    pricing.Catalog
	httpClient *http.Client
	policy     retry.Policy
	probe      func(ctx context.Context, binary, path string) (float64, error)
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

// WithRetryMaxAttempts overrides the default retry count (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.policy.Attempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.policy.BaseDelay = baseDelay
		c.policy.MaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.policy.Sleeper = sleeper
	}
}

// WithDurationProbe replaces the ffprobe-based duration lookup.
func WithDurationProbe(probe func(ctx context.Context, binary, path string) (float64, error)) Option {
	return func(c *Client) {
		if probe != nil {
			c.probe = probe
		}
	}
}

// NewClient builds a client that bills characters at the catalog's premium
// narration rate.
func NewClient(cfg Config, catalog pricing.Catalog, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	client := &Client{
		cfg:        cfg,
		catalog:    catalog,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Default(),
		probe:      narration.ProbeDuration,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Name implements narration.Synthesizer.
func (c *Client) Name() string { return ProviderName }

type synthesisRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Synthesize implements narration.Synthesizer. The configured voice ID wins
// over voice.ID, which usually names a free-provider voice.
func (c *Client) Synthesize(ctx context.Context, text string, voice narration.Voice, outPath string) (narration.Audio, error) {
	if c == nil {
		return narration.Audio{}, services.Wrap(services.ErrConfiguration, "narration", ProviderName, "client unavailable", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return narration.Audio{}, services.Wrap(services.ErrConfiguration, "narration", ProviderName, "api key missing", nil)
	}
	voiceID := strings.TrimSpace(c.cfg.VoiceID)
	if voiceID == "" {
		voiceID = strings.TrimSpace(voice.ID)
	}
	if voiceID == "" {
		return narration.Audio{}, services.Wrap(services.ErrConfiguration, "narration", ProviderName, "voice id missing", nil)
	}
	endpoint, err := url.JoinPath(strings.TrimSpace(c.cfg.BaseURL), voiceID)
	if err != nil {
		return narration.Audio{}, services.Wrap(services.ErrConfiguration, "narration", ProviderName, "invalid base url", err)
	}

	chars := narration.Characters(text)
	cost, err := c.catalog.PriceOf(pricing.CategoryNarrationPremium, chars, pricing.ModeProduction)
	if err != nil {
		return narration.Audio{}, err
	}

	payload, err := json.Marshal(synthesisRequest{Text: text, ModelID: c.cfg.Model, LanguageCode: languageCode(voice.Language)})
	if err != nil {
		return narration.Audio{}, fmt.Errorf("encode request: %w", err)
	}

	var audio []byte
	err = c.policy.Do(ctx, func(int) error {
		var callErr error
		audio, callErr = c.post(ctx, endpoint, payload)
		return callErr
	})
	if err != nil {
		return narration.Audio{}, classify(err)
	}
	if len(audio) == 0 {
		return narration.Audio{}, services.Wrap(services.ErrExternalTool, "narration", ProviderName, "empty audio response", nil)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return narration.Audio{}, services.Wrap(services.ErrConfiguration, "narration", ProviderName, "create output directory", err)
	}
	if err := os.WriteFile(outPath, audio, 0o644); err != nil {
		return narration.Audio{}, services.Wrap(services.ErrExternalTool, "narration", ProviderName, "write audio", err)
	}
	duration, err := c.probe(ctx, c.cfg.FFprobeBinary, outPath)
	if err != nil {
		return narration.Audio{}, err
	}
	return narration.Audio{
		Path:            outPath,
		DurationSeconds: duration,
		Cost:            cost,
		Provider:        ProviderName,
		Characters:      chars,
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("premium tts request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retry.NewStatusError("premium tts", resp, body)
	}
	return body, nil
}

func classify(err error) error {
	var statusErr *retry.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "narration", ProviderName, "credentials rejected", err)
		case statusErr.Temporary():
			return services.Wrap(services.ErrTransient, "narration", ProviderName, "provider unavailable", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "narration", ProviderName, "synthesis failed", err)
}

// "en-US" -> "en"
func languageCode(language string) string {
	language = strings.TrimSpace(language)
	if idx := strings.IndexAny(language, "-_"); idx > 0 {
		return strings.ToLower(language[:idx])
	}
	return strings.ToLower(language)
}
