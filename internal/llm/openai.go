package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openaiModel     = "gpt-4o"
	openaiLiteModel = "gpt-4o-mini"
)

// openaiPricing is USD per million input/output tokens.
var openaiPricing = map[string][2]float64{
	openaiModel:     {2.50, 10.00},
	openaiLiteModel: {0.15, 0.60},
}

// OpenAIProvider uses the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
	models Models
}

func NewOpenAIProvider(apiKey string, models Models) *OpenAIProvider {
	return NewOpenAIProviderWithConfig(openai.DefaultConfig(apiKey), models)
}

func NewOpenAIProviderWithConfig(cfg openai.ClientConfig, models Models) *OpenAIProvider {
	if models.Standard == "" {
		models.Standard = openaiModel
	}
	if models.Lite == "" {
		models.Lite = openaiLiteModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), models: models}
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := o.models.For(req.Tier)

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.Media) == 0 {
		user.Content = req.Prompt
	} else {
		user.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: req.Prompt}}
		for _, m := range req.Media {
			user.MultiContent = append(user.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: m.DataURI(), Detail: openai.ImageURLDetailAuto},
			})
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: []openai.ChatCompletionMessage{user},
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	resp := &Response{Model: model}
	for round := 0; ; round++ {
		completion, err := o.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, fmt.Errorf("openai: create chat completion: %w", err)
		}
		resp.Usage.add(openaiUsage(model, completion.Usage))

		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices from OpenAI", ErrModelResponseInvalid)
		}
		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			resp.Text = msg.Content
			return resp, nil
		}
		if round >= maxToolRounds {
			return nil, fmt.Errorf("%w: model still calling tools after %d rounds", ErrModelResponseInvalid, maxToolRounds)
		}

		chatReq.Messages = append(chatReq.Messages, msg)
		for _, call := range msg.ToolCalls {
			payload, _ := runTool(ctx, req.Tools, call.Function.Name, json.RawMessage(call.Function.Arguments))
			out, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("marshal tool result: %w", err)
			}
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    string(out),
				ToolCallID: call.ID,
			})
			resp.ToolCalls++
		}
	}
}

func openaiUsage(model string, u openai.Usage) Usage {
	usage := Usage{
		InputTokens:  int64(u.PromptTokens),
		OutputTokens: int64(u.CompletionTokens),
		TotalTokens:  int64(u.TotalTokens),
	}
	if price, ok := openaiPricing[model]; ok {
		usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, price[0], price[1])
	}
	return usage
}
