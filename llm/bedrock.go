package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockLLM is an adapter for Amazon Bedrock foundation models via the
// Converse API.
//
// Supports the full AWS credential chain: explicit keys, shared
// profiles, environment variables and IAM roles. WithJSONSchema is
// honored through a system prompt directive since Converse has no
// structured-output parameter.
//
// Example:
//
//	model, err := NewBedrockLLM(ctx, BedrockConfig{
//	    ModelID: "anthropic.claude-3-5-sonnet-20241022-v2:0",
//	    Region:  "us-west-2",
//	})
type BedrockLLM struct {
	client  *bedrockruntime.Client
	modelID string
}

// BedrockConfig holds configuration for creating a Bedrock adapter.
type BedrockConfig struct {
	// ModelID is the Bedrock model identifier.
	ModelID string

	// Region is the AWS region (default: us-east-1).
	Region string

	// Profile is the AWS shared-config profile name (optional).
	Profile string

	// AccessKeyID and SecretAccessKey bypass the credential chain
	// (optional).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// EndpointURL overrides the service endpoint for VPC endpoints
	// (optional).
	EndpointURL string
}

// NewBedrockLLM creates a Bedrock adapter.
func NewBedrockLLM(ctx context.Context, cfg BedrockConfig) (*BedrockLLM, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	configOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return &BedrockLLM{
		client:  bedrockruntime.NewFromConfig(awsConfig, clientOpts...),
		modelID: cfg.ModelID,
	}, nil
}

// Model returns the model identifier.
func (b *BedrockLLM) Model() string {
	return b.modelID
}

// Complete generates a completion via Converse.
func (b *BedrockLLM) Complete(ctx context.Context, messages []*Message, opts ...CallOption) (*Message, error) {
	options := BuildCallOptions(opts...)

	bedrockMessages, systemPrompts := b.convertMessages(messages)
	if options.JSONSchema != nil {
		systemPrompts = append(systemPrompts, &types.SystemContentBlockMemberText{
			Value: schemaInstruction(options.JSONSchema),
		})
	}

	inferenceConfig := &types.InferenceConfiguration{}
	if options.Temperature != nil {
		inferenceConfig.Temperature = aws.Float32(float32(*options.Temperature))
	}
	maxTokens := 4096
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	inferenceConfig.MaxTokens = aws.Int32(int32(maxTokens))
	if options.TopP != nil {
		inferenceConfig.TopP = aws.Float32(float32(*options.TopP))
	}
	if stopSeq, ok := options.Extra["stopSequences"].([]string); ok && len(stopSeq) > 0 {
		inferenceConfig.StopSequences = stopSeq
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		Messages:        bedrockMessages,
		InferenceConfig: inferenceConfig,
	}
	if len(systemPrompts) > 0 {
		input.System = systemPrompts
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock api error: %w", err)
	}

	var content string
	if output.Output != nil {
		if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
			for _, block := range msg.Value.Content {
				if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
					content += textBlock.Value
				}
			}
		}
	}

	response := NewMessage(RoleAssistant, content)
	response.Metadata["model"] = b.modelID
	if output.Usage != nil {
		response.Metadata["usage"] = map[string]interface{}{
			"prompt_tokens":     aws.ToInt32(output.Usage.InputTokens),
			"completion_tokens": aws.ToInt32(output.Usage.OutputTokens),
			"total_tokens":      aws.ToInt32(output.Usage.TotalTokens),
		}
	}
	if output.StopReason != "" {
		response.Metadata["stop_reason"] = string(output.StopReason)
	}

	return response, nil
}

// convertMessages converts neutral messages to Converse format. System
// messages go to the dedicated system blocks.
func (b *BedrockLLM) convertMessages(messages []*Message) ([]types.Message, []types.SystemContentBlock) {
	var bedrockMessages []types.Message
	var systemPrompts []types.SystemContentBlock

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			systemPrompts = append(systemPrompts, &types.SystemContentBlockMemberText{
				Value: msg.Content,
			})
			continue
		}

		role := types.ConversationRoleAssistant
		if msg.Role == RoleUser {
			role = types.ConversationRoleUser
		}

		bedrockMessages = append(bedrockMessages, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: msg.Content},
			},
		})
	}

	return bedrockMessages, systemPrompts
}

// Unwrap returns the underlying *bedrockruntime.Client.
func (b *BedrockLLM) Unwrap() interface{} {
	return b.client
}

var _ LLM = (*BedrockLLM)(nil)
