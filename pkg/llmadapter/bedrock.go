package llmadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
	"github.com/hjonck/leadscout/pkg/classify"
)

// DefaultBedrockModelID is used when BedrockConfig.ModelID is empty.
const DefaultBedrockModelID = "anthropic.claude-3-5-haiku-20241022-v1:0"

// BedrockConfig configures the AWS Bedrock provider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
	ModelID         string
	MaxTokens       int32
	Temperature     float32
	Timeout         time.Duration
}

func (c BedrockConfig) withDefaults() BedrockConfig {
	if c.ModelID == "" {
		if env := os.Getenv("LEADSCOUT_BEDROCK_MODEL_ID"); env != "" {
			c.ModelID = env
		} else {
			c.ModelID = DefaultBedrockModelID
		}
	}
	if c.Region == "" {
		c.Region = os.Getenv("AWS_REGION")
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 256
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// BedrockProvider classifies names through AWS Bedrock's Converse API,
// built directly on bedrockruntime rather than the Anthropic SDK's
// Bedrock transport, so credential resolution follows the standard AWS
// SDK chain (static keys, named profile, or IAM role).
type BedrockProvider struct {
	client *bedrockruntime.Client
	config BedrockConfig
	name   string
}

// NewBedrockProvider builds a BedrockProvider, resolving AWS credentials
// via explicit keys, a named profile, or the default chain, in that
// order of preference.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	cfg = cfg.withDefaults()
	if cfg.Region == "" {
		return nil, fmt.Errorf("llmadapter: bedrock region is required")
	}

	var awsCfg aws.Config
	var err error
	switch {
	case cfg.AccessKeyID != "" && cfg.SecretAccessKey != "":
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	case cfg.Profile != "":
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithSharedConfigProfile(cfg.Profile))
	default:
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("llmadapter: loading AWS config: %w", err)
	}

	return &BedrockProvider{
		client: bedrockruntime.NewFromConfig(awsCfg),
		config: cfg,
		name:   "bedrock",
	}, nil
}

// Name implements Provider.
func (p *BedrockProvider) Name() string { return p.name }

// Classify implements Provider.
func (p *BedrockProvider) Classify(ctx context.Context, req Request) (*classify.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	toolSpec, err := classifyNameToolSpec()
	if err != nil {
		return nil, &Error{Kind: ErrUnknown, Err: err}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(p.config.ModelID),
		Messages: []bedrocktypes.Message{
			{
				Role: bedrocktypes.ConversationRoleUser,
				Content: []bedrocktypes.ContentBlock{
					&bedrocktypes.ContentBlockMemberText{Value: buildPrompt(req)},
				},
			},
		},
		System: []bedrocktypes.SystemContentBlock{
			&bedrocktypes.SystemContentBlockMemberText{Value: systemPrompt},
		},
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(p.config.MaxTokens),
			Temperature: aws.Float32(p.config.Temperature),
		},
		ToolConfig: &bedrocktypes.ToolConfiguration{
			Tools: []bedrocktypes.Tool{
				&bedrocktypes.ToolMemberToolSpec{Value: *toolSpec},
			},
			ToolChoice: &bedrocktypes.ToolChoiceMemberTool{
				Value: bedrocktypes.SpecificToolChoice{Name: aws.String(classifyNameToolName)},
			},
		},
	}

	start := time.Now()
	output, err := p.client.Converse(ctx, input)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage)
	if !ok {
		return nil, &Error{Kind: ErrSchemaViolation, Err: fmt.Errorf("unexpected Converse output shape")}
	}

	for _, block := range msg.Value.Content {
		toolUse, ok := block.(*bedrocktypes.ContentBlockMemberToolUse)
		if !ok || aws.ToString(toolUse.Value.Name) != classifyNameToolName {
			continue
		}

		inputBytes, err := json.Marshal(toolUse.Value.Input)
		if err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}
		var result toolResult
		if err := json.Unmarshal(inputBytes, &result); err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}
		if err := result.validate(); err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}

		var inputTokens, outputTokens int
		if output.Usage != nil {
			inputTokens = int(aws.ToInt32(output.Usage.InputTokens))
			outputTokens = int(aws.ToInt32(output.Usage.OutputTokens))
		}

		c, err := classify.NewClassification(req.Name, classify.Ethnicity(result.Ethnicity), result.Confidence, classify.MethodLLM, elapsed)
		if err != nil {
			return nil, &Error{Kind: ErrSchemaViolation, Err: err}
		}
		c.Provider = p.name
		c.Cost = p.calculateCost(inputTokens, outputTokens)
		log.Debug("bedrock classification",
			zap.String("name", req.Name.Normalized),
			zap.String("ethnicity", string(c.Ethnicity)))
		return &c, nil
	}

	return nil, &Error{Kind: ErrSchemaViolation, Err: fmt.Errorf("no classify_name tool call in response")}
}

func (p *BedrockProvider) calculateCost(inputTokens, outputTokens int) float64 {
	const inputPerMillion, outputPerMillion = 0.8, 4.0
	return float64(inputTokens)*inputPerMillion/1_000_000 + float64(outputTokens)*outputPerMillion/1_000_000
}

// classifyNameToolSpec builds the Bedrock Converse API's tool specification
// from the same JSON schema the Anthropic provider sends, so both
// providers enforce an identical contract.
func classifyNameToolSpec() (*bedrocktypes.ToolSpecification, error) {
	schemaBytes, err := json.Marshal(classifyNameInputSchema())
	if err != nil {
		return nil, err
	}
	var schemaDoc map[string]any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return nil, err
	}
	return &bedrocktypes.ToolSpecification{
		Name:        aws.String(classifyNameToolName),
		Description: aws.String(classifyNameToolDescription),
		InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
			Value: document(schemaDoc),
		},
	}, nil
}

// document adapts a plain map into the smithy document.Interface the AWS
// SDK expects for free-form JSON schema payloads.
type document map[string]any

func (d document) MarshalSmithyDocument() ([]byte, error) {
	return json.Marshal(map[string]any(d))
}

func (d document) UnmarshalSmithyDocument(v any) error {
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func classifyBedrockError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return &Error{Kind: ErrRateLimited, Err: err}
		case "AccessDeniedException", "UnrecognizedClientException":
			return &Error{Kind: ErrAuth, Err: err}
		case "ModelNotReadyException", "ServiceUnavailableException", "InternalServerException":
			return &Error{Kind: ErrProviderUnavailable, Err: err}
		case "ValidationException":
			return &Error{Kind: ErrSchemaViolation, Err: err}
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return &Error{Kind: ErrTimeout, Err: err}
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "too many requests"):
		return &Error{Kind: ErrRateLimited, Err: err}
	default:
		return &Error{Kind: ErrUnknown, Err: err}
	}
}
