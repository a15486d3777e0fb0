package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

const (
	geminiModel     = "gemini-3-flash-preview"
	geminiLiteModel = "gemini-2.5-flash-lite"
)

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion      = 0.50
	geminiOutputPricePerMillion     = 3.00
	geminiLiteInputPricePerMillion  = 0.075
	geminiLiteOutputPricePerMillion = 0.30
)

// GeminiProvider uses Google's Gemini API.
type GeminiProvider struct {
	client *genai.Client
	models Models
}

// NewGeminiProvider creates a Gemini client. Empty model names fall back to
// the default standard and lite models.
func NewGeminiProvider(ctx context.Context, apiKey string, models Models) (*GeminiProvider, error) {
	return NewGeminiProviderWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, models)
}

// NewGeminiProviderWithConfig allows overriding the client config, e.g. the
// base URL in tests.
func NewGeminiProviderWithConfig(ctx context.Context, cfg *genai.ClientConfig, models Models) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if models.Standard == "" {
		models.Standard = geminiModel
	}
	if models.Lite == "" {
		models.Lite = geminiLiteModel
	}
	return &GeminiProvider{client: client, models: models}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

// Generate sends the prompt and images, answering function calls until the
// model returns text.
func (g *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := g.models.For(req.Tier)

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, m := range req.Media {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: m.Data, MIMEType: m.MIMEType},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	// Gemini rejects a JSON response MIME type combined with function calling,
	// so tool-using templates rely on the prompt instruction alone.
	config := &genai.GenerateContentConfig{}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  toGenaiSchema(t.Parameters()),
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	} else if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp := &Response{Model: model}
	for round := 0; ; round++ {
		result, err := g.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return nil, fmt.Errorf("failed to generate content: %w", err)
		}
		resp.Usage.add(g.usage(req.Tier, result))

		if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
			return nil, fmt.Errorf("%w: no response from Gemini", ErrModelResponseInvalid)
		}

		calls := result.FunctionCalls()
		if len(calls) == 0 {
			resp.Text = result.Text()
			return resp, nil
		}
		if round >= maxToolRounds {
			return nil, fmt.Errorf("%w: model still calling tools after %d rounds", ErrModelResponseInvalid, maxToolRounds)
		}

		contents = append(contents, result.Candidates[0].Content)
		replies := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			args, err := json.Marshal(call.Args)
			if err != nil {
				args = nil
			}
			payload, _ := runTool(ctx, req.Tools, call.Name, args)
			part := genai.NewPartFromFunctionResponse(call.Name, payload)
			part.FunctionResponse.ID = call.ID
			replies = append(replies, part)
			resp.ToolCalls++
		}
		contents = append(contents, genai.NewContentFromParts(replies, genai.RoleUser))
	}
}

func (g *GeminiProvider) usage(tier Tier, result *genai.GenerateContentResponse) Usage {
	if result.UsageMetadata == nil {
		return Usage{}
	}
	usage := Usage{
		InputTokens:  int64(result.UsageMetadata.PromptTokenCount),
		OutputTokens: int64(result.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int64(result.UsageMetadata.TotalTokenCount),
	}
	inputPrice, outputPrice := geminiInputPricePerMillion, geminiOutputPricePerMillion
	if tier == TierLite {
		inputPrice, outputPrice = geminiLiteInputPricePerMillion, geminiLiteOutputPricePerMillion
	}
	usage.CostUSD = calculateCost(usage.InputTokens, usage.OutputTokens, inputPrice, outputPrice)
	return usage
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}
