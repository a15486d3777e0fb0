package flows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/raine/itemcheck/internal/llm"
	"github.com/raine/itemcheck/internal/search"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Toolset holds the marketplace search tools the flows may hand to the
// model.
type Toolset struct {
	Ebay       search.Tool
	Amazon     search.Tool
	AliExpress search.Tool
}

// MockToolset returns the deterministic mock marketplaces.
func MockToolset() Toolset {
	return Toolset{
		Ebay:       search.NewMockEbay(),
		Amazon:     search.NewMockAmazon(),
		AliExpress: search.NewMockAliExpress(),
	}
}

func (ts Toolset) llmTools() []llm.Tool {
	var tools []llm.Tool
	for _, t := range []search.Tool{ts.Ebay, ts.Amazon, ts.AliExpress} {
		if t != nil {
			tools = append(tools, searchTool{t})
		}
	}
	return tools
}

// searchTool exposes a search.Tool to the model with a single query
// parameter.
type searchTool struct {
	tool search.Tool
}

func (s searchTool) Name() string        { return s.tool.Name() }
func (s searchTool) Description() string { return s.tool.Description() }

func (s searchTool) Parameters() *jsonschema.Definition {
	return &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "The search query, typically the item name or a short description.",
			},
		},
		Required: []string{"query"},
	}
}

func (s searchTool) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("%w: invalid arguments: %w", llm.ErrToolUnavailable, err)
	}
	items, err := s.tool.Search(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", llm.ErrToolUnavailable, s.tool.Name(), err)
	}
	return items, nil
}
