package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// maxToolRounds bounds how many times a provider feeds tool results back to
// the model before giving up on a final answer.
const maxToolRounds = 5

// Tool is a capability the model may invoke while generating a response.
type Tool interface {
	Name() string
	Description() string
	Parameters() *jsonschema.Definition
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// runTool executes the named tool and returns the payload to feed back to
// the model. Failures are reported in the payload instead of aborting the
// generation, so the model can still answer without the tool's data.
func runTool(ctx context.Context, tools []Tool, name string, args json.RawMessage) (map[string]any, bool) {
	var tool Tool
	for _, t := range tools {
		if t.Name() == name {
			tool = t
			break
		}
	}
	if tool == nil {
		log.Warn().Str("tool", name).Msg("model requested unknown tool")
		return map[string]any{"error": fmt.Sprintf("unknown tool %q", name)}, false
	}

	result, err := tool.Call(ctx, args)
	if err != nil {
		if !errors.Is(err, ErrToolUnavailable) {
			err = fmt.Errorf("%w: %w", ErrToolUnavailable, err)
		}
		log.Warn().Err(err).Str("tool", name).RawJSON("args", nonEmptyJSON(args)).Msg("tool call failed")
		return map[string]any{"error": err.Error()}, false
	}

	log.Debug().Str("tool", name).RawJSON("args", nonEmptyJSON(args)).Msg("tool call")
	return map[string]any{"results": result}, true
}

func nonEmptyJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("{}")
	}
	return raw
}
