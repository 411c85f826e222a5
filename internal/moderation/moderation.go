// Package moderation adapts the OpenAI moderation endpoint into a risk assessment provider.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/OracleRouter/internal/models"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY not set")

// moderationService is the subset of the OpenAI client this package uses.
type moderationService interface {
	New(ctx context.Context, body openai.ModerationNewParams, opts ...option.RequestOption) (*openai.ModerationNewResponse, error)
}

// Opts holds client options.
type Opts struct {
	APIKey     string
	BaseURL    string
	Model      openai.ModerationModel
	MaxRetries int
}

// Option configures a Client.
type Option func(*Opts)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithModel selects the moderation model.
func WithModel(model openai.ModerationModel) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithMaxRetries sets the SDK retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Opts) {
		o.MaxRetries = n
	}
}

// Client turns moderation scores into RiskAssessments.
type Client struct {
	svc   moderationService
	model openai.ModerationModel
}

// NewClient creates a moderation client. The API key defaults to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	o := Opts{
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		Model:      openai.ModerationModelOmniModerationLatest,
		MaxRetries: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithMaxRetries(o.MaxRetries),
	}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("moderation.NewClient: client created", "model", o.Model, "baseURL_set", o.BaseURL != "")
	return &Client{svc: &cli.Moderations, model: o.Model}, nil
}

// AssessRisk classifies the text. The user id and context are accepted for the
// provider contract and are not sent to the endpoint.
func (c *Client) AssessRisk(ctx context.Context, text, userID string, _ map[string]string) (*models.RiskAssessment, error) {
	resp, err := c.svc.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.model,
	})
	if err != nil {
		slog.Warn("Client.AssessRisk: moderation request failed", "userID", userID, "error", err)
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return nil, fmt.Errorf("moderation returned no results")
	}
	risk := Assess(resp.Results[0])
	slog.Debug("Client.AssessRisk: risk assessed", "userID", userID, "riskLevel", risk.RiskLevel, "flagged", resp.Results[0].Flagged)
	return &risk, nil
}
