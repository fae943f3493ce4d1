package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/classify"
)

// DefaultAnthropicModel is used when AnthropicConfig.Model is empty.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicConfig configures the direct Anthropic API provider.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

func (c AnthropicConfig) withDefaults() AnthropicConfig {
	if c.Model == "" {
		if env := os.Getenv("LEADSCOUT_ANTHROPIC_MODEL"); env != "" {
			c.Model = env
		} else {
			c.Model = DefaultAnthropicModel
		}
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 256
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// AnthropicProvider classifies names via Anthropic's Messages API,
// forcing a single classify_name tool call on every request.
type AnthropicProvider struct {
	client anthropic.Client
	config AnthropicConfig
	name   string
}

// NewAnthropicProvider builds an AnthropicProvider from an API key and
// options. Returns an error if apiKey is empty, since a provider with no
// credentials should never be registered with the factory.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmadapter: anthropic API key is required")
	}
	cfg = cfg.withDefaults()
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicProvider{client: client, config: cfg, name: "anthropic"}, nil
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return p.name }

// Classify implements Provider.
func (p *AnthropicProvider) Classify(ctx context.Context, req Request) (*classify.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	schemaJSON, err := json.Marshal(classifyNameInputSchema())
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}
	var inputSchema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(schemaJSON, &inputSchema); err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.config.Model),
		MaxTokens:   p.config.MaxTokens,
		Temperature: anthropic.Float(p.config.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &anthropic.ToolParam{
				Name:        classifyNameToolName,
				Description: anthropic.String(classifyNameToolDescription),
				InputSchema: inputSchema,
			}},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: classifyNameToolName},
		},
	}

	start := time.Now()
	message, err := p.client.Messages.New(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	for _, block := range message.Content {
		if block.Type != "tool_use" || block.Name != classifyNameToolName {
			continue
		}
		var result toolResult
		if err := json.Unmarshal(block.Input, &result); err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}
		if err := result.validate(); err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}

		cost := p.calculateCost(int(message.Usage.InputTokens), int(message.Usage.OutputTokens))
		c, err := classify.NewClassification(req.Name, classify.Ethnicity(result.Ethnicity), result.Confidence, classify.MethodLLM, elapsed)
		if err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}
		c.Provider = p.name
		c.Cost = cost
		log.Debug("anthropic classification",
			zap.String("name", req.Name.Normalized),
			zap.String("ethnicity", string(c.Ethnicity)))
		return &c, nil
	}

	return nil, &Error{Kind: ErrSchemaViolation, Err: fmt.Errorf("no classify_name tool call in response")}
}

func (p *AnthropicProvider) calculateCost(inputTokens, outputTokens int) float64 {
	// Claude 3.5 Haiku pricing tier, used as the default cheap classification model.
	const inputPerMillion, outputPerMillion = 0.8, 4.0
	return float64(inputTokens)*inputPerMillion/1_000_000 + float64(outputTokens)*outputPerMillion/1_000_000
}

// classifyAnthropicError maps the SDK's error shape to our closed error
// taxonomy: it uses the status code of a typed *anthropic.Error when there
// is one, and otherwise falls back to substring matching on the error text.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return &Error{Kind: ErrAuth, Err: err}
		case 429:
			return &Error{Kind: ErrRateLimited, Err: err}
		case 500, 502, 503, 529:
			return &Error{Kind: ErrProviderUnavailable, Err: err}
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return &Error{Kind: ErrTimeout, Err: err}
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return &Error{Kind: ErrRateLimited, Err: err}
	case strings.Contains(msg, "content filter"), strings.Contains(msg, "content_policy"):
		return &Error{Kind: ErrContentFiltered, Err: err}
	default:
		return &Error{Kind: ErrUnknown, Err: err}
	}
}
