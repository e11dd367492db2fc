// Package gateway wraps the chat-completion API behind a purpose-keyed model
// policy and uniform cost/latency accounting.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flowstack-agency/leadflow/internal/cost"
	"github.com/flowstack-agency/leadflow/pkg/openai"
)

// Purpose identifies which pipeline component is making a model call. The
// model tier is a fixed function of purpose, not an adaptive choice:
// qualification scoring runs once per lead and pays for the quality tier,
// while chat and email copy are volume traffic on the cost tier.
type Purpose string

const (
	PurposeLeadScoring     Purpose = "lead_scoring"
	PurposeEmailGeneration Purpose = "email_generation"
	PurposeChat            Purpose = "chat"
)

// Models pins each tier to a concrete model identifier.
type Models struct {
	Quality string `yaml:"quality" mapstructure:"quality"`
	Cost    string `yaml:"cost" mapstructure:"cost"`
}

// DefaultModels returns the standard tier assignment.
func DefaultModels() Models {
	return Models{Quality: "gpt-4o", Cost: "gpt-4o-mini"}
}

// ForPurpose resolves a purpose to its model. Unknown purposes get the cost
// tier so a new caller never accidentally runs on the expensive model.
func (m Models) ForPurpose(p Purpose) string {
	if p == PurposeLeadScoring {
		return m.Quality
	}
	return m.Cost
}

// ConfigError reports a missing credential or model setting. It is fatal:
// no partial work is attempted when configuration is incomplete.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "gateway: missing configuration: " + e.Field
}

// Error is the typed failure for an upstream model call. StatusCode is 0
// when the failure happened below the HTTP layer.
type Error struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway: model call failed with status %d: %s", e.StatusCode, e.Body)
	}
	return "gateway: model call failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Request describes one completion call.
type Request struct {
	Purpose     Purpose
	System      string
	User        string
	History     []openai.Message
	MaxTokens   int
	Temperature *float64
}

// Result carries the completion text plus the accounting fields recorded in
// the interaction ledger.
type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMS    int64
	CostUSD      float64
}

// Gateway executes completion requests against one provider client. It never
// retries internally; retry policy belongs to callers.
type Gateway struct {
	client openai.Client
	models Models
	costs  *cost.Calculator
}

// New creates a Gateway around an existing provider client.
func New(client openai.Client, models Models, costs *cost.Calculator) *Gateway {
	if models.Quality == "" {
		models.Quality = DefaultModels().Quality
	}
	if models.Cost == "" {
		models.Cost = DefaultModels().Cost
	}
	return &Gateway{client: client, models: models, costs: costs}
}

// NewFromConfig builds the provider client and the Gateway in one step.
func NewFromConfig(apiKey, baseURL string, models Models, costs *cost.Calculator) (*Gateway, error) {
	if apiKey == "" {
		return nil, &ConfigError{Field: "model.key"}
	}

	var opts []openai.Option
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	return New(openai.NewClient(apiKey, opts...), models, costs), nil
}

// ModelFor exposes the policy table so callers can attribute a failed call
// to the model that would have served it.
func (g *Gateway) ModelFor(p Purpose) string {
	return g.models.ForPurpose(p)
}

// Complete runs one chat completion for the request's purpose.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Result, error) {
	model := g.models.ForPurpose(req.Purpose)

	messages := make([]openai.Message, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.History...)
	messages = append(messages, openai.Message{Role: "user", Content: req.User})

	apiReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		apiReq.MaxTokens = &req.MaxTokens
	}

	start := time.Now()
	resp, err := g.client.ChatCompletion(ctx, apiReq)
	latency := time.Since(start)

	if err != nil {
		var se *openai.StatusError
		if errors.As(err, &se) {
			return nil, &Error{StatusCode: se.StatusCode, Body: se.Body, Err: err}
		}
		return nil, &Error{Err: err}
	}

	if resp.Text() == "" {
		return nil, &Error{Err: eris.New("empty completion response")}
	}

	respModel := resp.Model
	if respModel == "" {
		respModel = model
	}

	result := &Result{
		Text:         resp.Text(),
		Model:        respModel,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMS:    latency.Milliseconds(),
		CostUSD:      g.costs.Completion(respModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}

	zap.L().Debug("model completion",
		zap.String("purpose", string(req.Purpose)),
		zap.String("model", result.Model),
		zap.Int("input_tokens", result.InputTokens),
		zap.Int("output_tokens", result.OutputTokens),
		zap.Int64("latency_ms", result.LatencyMS),
		zap.Float64("cost_usd", result.CostUSD),
	)

	return result, nil
}
