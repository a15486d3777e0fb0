package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	anthropicModel     = "claude-sonnet-4-5-20250929"
	anthropicLiteModel = "claude-haiku-4-5-20251001"
	anthropicMaxTokens = 4096
)

// anthropicPricing is USD per million input/output tokens.
var anthropicPricing = map[string][2]float64{
	anthropicModel:     {3.00, 15.00},
	anthropicLiteModel: {1.00, 5.00},
}

// AnthropicProvider uses the Anthropic Messages API.
type AnthropicProvider struct {
	client sdk.Client
	models Models
}

// NewAnthropicProvider creates a provider. Extra request options are applied
// after the API key, e.g. option.WithBaseURL in tests.
func NewAnthropicProvider(apiKey string, models Models, opts ...option.RequestOption) *AnthropicProvider {
	if models.Standard == "" {
		models.Standard = anthropicModel
	}
	if models.Lite == "" {
		models.Lite = anthropicLiteModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client: sdk.NewClient(opts...),
		models: models,
	}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

func (a *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := a.models.For(req.Tier)

	content := make([]sdk.ContentBlockParamUnion, 0, len(req.Media)+1)
	for _, m := range req.Media {
		content = append(content, sdk.NewImageBlockBase64(m.MIMEType, m.Base64()))
	}
	content = append(content, sdk.NewTextBlock(req.Prompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(content...)},
	}
	for _, t := range req.Tools {
		schema := t.Parameters()
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name(),
				Description: sdk.String(t.Description()),
				InputSchema: sdk.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}

	resp := &Response{Model: model}
	for round := 0; ; round++ {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("anthropic: create message: %w", err)
		}
		resp.Usage.add(anthropicUsage(model, msg.Usage))

		var text strings.Builder
		var results []sdk.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				use := block.AsToolUse()
				payload, ok := runTool(ctx, req.Tools, use.Name, use.Input)
				out, err := json.Marshal(payload)
				if err != nil {
					return nil, fmt.Errorf("marshal tool result: %w", err)
				}
				results = append(results, sdk.NewToolResultBlock(use.ID, string(out), !ok))
				resp.ToolCalls++
			}
		}

		if msg.StopReason != sdk.StopReasonToolUse || len(results) == 0 {
			if text.Len() == 0 {
				return nil, fmt.Errorf("%w: empty response from Anthropic", ErrModelResponseInvalid)
			}
			resp.Text = text.String()
			return resp, nil
		}
		if round >= maxToolRounds {
			return nil, fmt.Errorf("%w: model still calling tools after %d rounds", ErrModelResponseInvalid, maxToolRounds)
		}
		params.Messages = append(params.Messages, msg.ToParam(), sdk.NewUserMessage(results...))
	}
}

func anthropicUsage(model string, u sdk.Usage) Usage {
	usage := Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
	if price, ok := anthropicPricing[model]; ok {
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, price[0], price[1])
	}
	return usage
}
