package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func toolRequest() *Request {
	return &Request{
		TemplateID: "greet",
		Tier:       TierStandard,
		Prompt:     "Say hello",
		Media:      []Media{{MIMEType: "image/jpeg", Data: []byte("123")}},
		Tools:      []Tool{echoTool{}},
		Schema:     &jsonschema.Definition{Type: jsonschema.Object},
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAIProvider_ToolLoop(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body := decodeBody(t, r)
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			assert.Equal(t, "gpt-test", body["model"])
			assert.Len(t, body["tools"], 1)
			w.Write([]byte(`{"id":"1","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"echo","arguments":"{\"query\":\"x\"}"}}]}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
		default:
			msgs := body["messages"].([]any)
			require.Len(t, msgs, 3)
			last := msgs[2].(map[string]any)
			assert.Equal(t, "tool", last["role"])
			assert.Equal(t, "call_1", last["tool_call_id"])
			assert.Contains(t, last["content"], `\"query\":\"x\"`)
			w.Write([]byte(`{"id":"2","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"message\":\"hi\"}"}}],"usage":{"prompt_tokens":20,"completion_tokens":5,"total_tokens":25}}`))
		}
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	p := NewOpenAIProviderWithConfig(cfg, Models{Standard: "gpt-test"})

	resp, err := p.Generate(context.Background(), toolRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hi"}`, resp.Text)
	assert.Equal(t, 1, resp.ToolCalls)
	assert.Equal(t, int64(30), resp.Usage.InputTokens)
	assert.Equal(t, 2, calls)
}

func TestOpenAIProvider_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	p := NewOpenAIProviderWithConfig(cfg, Models{})

	_, err := p.Generate(context.Background(), &Request{Prompt: "x"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelResponseInvalid)
}

func TestAnthropicProvider_ToolLoop(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/messages")
		body := decodeBody(t, r)
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			assert.Len(t, body["tools"], 1)
			w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","stop_reason":"tool_use","content":[{"type":"text","text":"Looking it up."},{"type":"tool_use","id":"toolu_1","name":"echo","input":{"query":"x"}}],"usage":{"input_tokens":10,"output_tokens":5}}`))
		default:
			msgs := body["messages"].([]any)
			require.Len(t, msgs, 3)
			last := msgs[2].(map[string]any)
			assert.Equal(t, "user", last["role"])
			block := last["content"].([]any)[0].(map[string]any)
			assert.Equal(t, "tool_result", block["type"])
			assert.Equal(t, "toolu_1", block["tool_use_id"])
			w.Write([]byte(`{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","stop_reason":"end_turn","content":[{"type":"text","text":"{\"message\":\"hi\"}"}],"usage":{"input_tokens":20,"output_tokens":5}}`))
		}
	}))
	defer ts.Close()

	p := NewAnthropicProvider("test-key", Models{Standard: "claude-test"}, option.WithBaseURL(ts.URL), option.WithMaxRetries(0))

	resp, err := p.Generate(context.Background(), toolRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hi"}`, resp.Text)
	assert.Equal(t, 1, resp.ToolCalls)
	assert.Equal(t, int64(30), resp.Usage.InputTokens)
	assert.Equal(t, 2, calls)
}

func TestAnthropicProvider_EmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","stop_reason":"end_turn","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`))
	}))
	defer ts.Close()

	p := NewAnthropicProvider("test-key", Models{}, option.WithBaseURL(ts.URL), option.WithMaxRetries(0))
	_, err := p.Generate(context.Background(), &Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrModelResponseInvalid)
}

func TestGeminiProvider_ToolLoop(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		body := decodeBody(t, r)
		calls++
		w.Header().Set("Content-Type", "application/json")
		switch calls {
		case 1:
			assert.NotNil(t, body["tools"])
			w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"id":"fc_1","name":"echo","args":{"query":"x"}}}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`))
		default:
			contents := body["contents"].([]any)
			require.Len(t, contents, 3)
			parts := contents[2].(map[string]any)["parts"].([]any)
			fr := parts[0].(map[string]any)["functionResponse"].(map[string]any)
			assert.Equal(t, "echo", fr["name"])
			w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"message\":\"hi\"}"}]}}],"usageMetadata":{"promptTokenCount":20,"candidatesTokenCount":5,"totalTokenCount":25}}`))
		}
	}))
	defer ts.Close()

	p, err := NewGeminiProviderWithConfig(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: ts.URL},
	}, Models{Standard: "gemini-test"})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), toolRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"message":"hi"}`, resp.Text)
	assert.Equal(t, 1, resp.ToolCalls)
	assert.Equal(t, int64(30), resp.Usage.InputTokens)
	assert.Equal(t, 2, calls)
}

func TestGeminiProvider_StructuredOutputWithoutTools(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		cfg := body["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", cfg["responseMimeType"])
		assert.NotNil(t, cfg["responseSchema"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{}"}]}}]}`))
	}))
	defer ts.Close()

	p, err := NewGeminiProviderWithConfig(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: ts.URL},
	}, Models{})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), &Request{Prompt: "x", Tier: TierLite, Schema: &jsonschema.Definition{Type: jsonschema.Object}})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
	assert.Equal(t, geminiLiteModel, resp.Model)
}

func TestGeminiProvider_UsagePricedByTier(t *testing.T) {
	g := &GeminiProvider{models: Models{Standard: "custom-pro", Lite: "custom-lite"}}
	result := &genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     1_000_000,
			CandidatesTokenCount: 1_000_000,
			TotalTokenCount:      2_000_000,
		},
	}

	lite := g.usage(TierLite, result)
	assert.InDelta(t, geminiLiteInputPricePerMillion+geminiLiteOutputPricePerMillion, lite.CostUSD, 1e-9)
	assert.Equal(t, int64(2_000_000), lite.TotalTokens)

	standard := g.usage(TierStandard, result)
	assert.InDelta(t, geminiInputPricePerMillion+geminiOutputPricePerMillion, standard.CostUSD, 1e-9)

	assert.Zero(t, g.usage(TierLite, &genai.GenerateContentResponse{}).CostUSD)
}

func TestToGenaiSchema(t *testing.T) {
	def := &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"b":    {Type: jsonschema.Boolean},
			"a":    {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}},
			"kind": {Type: jsonschema.String, Enum: []string{"x", "y"}},
		},
		Required: []string{"a"},
	}
	s := toGenaiSchema(def)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"a", "b", "kind"}, s.PropertyOrdering)
	assert.Equal(t, genai.TypeString, s.Properties["a"].Items.Type)
	assert.Equal(t, []string{"x", "y"}, s.Properties["kind"].Enum)
	assert.Equal(t, []string{"a"}, s.Required)
}
