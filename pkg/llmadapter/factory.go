package llmadapter

import (
	"context"
	"fmt"
	"os"
	"time"
)

// FactoryConfig mirrors the provider credential fields a caller (the CLI
// composition root) gathers from configuration and the environment.
// Anthropic is constructed only when an API key is found. Bedrock is
// constructed whenever a region is known, even when no access key or
// profile is configured (the AWS default credential chain is then used),
// so a region alone keeps Bedrock in the provider list.
type FactoryConfig struct {
	Providers []string // priority order: e.g. ["anthropic", "bedrock"]

	AnthropicAPIKey string
	AnthropicModel  string

	BedrockRegion          string
	BedrockAccessKeyID     string
	BedrockSecretAccessKey string
	BedrockSessionToken    string
	BedrockProfile         string
	BedrockModelID         string

	RequestTimeoutSeconds int
}

// BuildProviders constructs a priority-ordered slice of Provider from
// FactoryConfig, skipping anthropic when no API key is found and bedrock
// when no region is found.
// This is the single place LLM provider selection happens, so
// pkg/ratelimit and pkg/classify never need to know which providers
// exist.
func BuildProviders(ctx context.Context, cfg FactoryConfig) ([]Provider, error) {
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = []string{"anthropic", "bedrock"}
	}

	var out []Provider
	for _, name := range providers {
		switch name {
		case "anthropic":
			apiKey := cfg.AnthropicAPIKey
			if apiKey == "" {
				apiKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			if apiKey == "" {
				continue
			}
			p, err := NewAnthropicProvider(AnthropicConfig{
				APIKey:  apiKey,
				Model:   cfg.AnthropicModel,
				Timeout: timeoutFrom(cfg.RequestTimeoutSeconds),
			})
			if err != nil {
				return nil, fmt.Errorf("llmadapter: building anthropic provider: %w", err)
			}
			out = append(out, p)

		case "bedrock":
			region := cfg.BedrockRegion
			if region == "" {
				region = os.Getenv("AWS_REGION")
			}
			accessKey := cfg.BedrockAccessKeyID
			if accessKey == "" {
				accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
			}
			secretKey := cfg.BedrockSecretAccessKey
			if secretKey == "" {
				secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
			}
			if region == "" || (accessKey == "" && cfg.BedrockProfile == "" && os.Getenv("AWS_PROFILE") == "") {
				// Neither explicit nor profile credentials configured; still
				// permit the default chain (IAM role) when a region is set.
				if region == "" {
					continue
				}
			}
			p, err := NewBedrockProvider(ctx, BedrockConfig{
				Region:          region,
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				SessionToken:    cfg.BedrockSessionToken,
				Profile:         cfg.BedrockProfile,
				ModelID:         cfg.BedrockModelID,
				Timeout:         timeoutFrom(cfg.RequestTimeoutSeconds),
			})
			if err != nil {
				return nil, fmt.Errorf("llmadapter: building bedrock provider: %w", err)
			}
			out = append(out, p)

		default:
			return nil, fmt.Errorf("llmadapter: unknown provider %q", name)
		}
	}

	return out, nil
}

func timeoutFrom(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
