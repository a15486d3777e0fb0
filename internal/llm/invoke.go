package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

func (u *Usage) add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
	u.CostUSD += o.CostUSD
}

// Models names the model used for each tier.
type Models struct {
	Standard string
	Lite     string
}

func (m Models) For(tier Tier) string {
	if tier == TierLite && m.Lite != "" {
		return m.Lite
	}
	return m.Standard
}

// Request is a single rendered generation request handed to a provider.
type Request struct {
	TemplateID string
	Tier       Tier
	Prompt     string
	Media      []Media
	Tools      []Tool
	Schema     *jsonschema.Definition
}

// Response is the final text answer of a provider after any tool rounds.
type Response struct {
	Text      string
	Model     string
	Usage     Usage
	ToolCalls int
}

// Provider is a model backend. Implementations run the tool loop themselves
// and return the model's final text.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// MediaSource is implemented by inputs that carry images.
type MediaSource interface {
	Media() ([]Media, error)
}

// Call identifies a template and its input.
type Call struct {
	Template string
	Input    any
}

// Invoker binds a provider to a template catalog and the tools templates may
// reference.
type Invoker struct {
	provider Provider
	catalog  *Catalog
	tools    map[string]Tool
}

// NewInvoker checks that every tool a template references is registered.
func NewInvoker(provider Provider, catalog *Catalog, tools ...Tool) (*Invoker, error) {
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	inv := &Invoker{
		provider: provider,
		catalog:  catalog,
		tools:    make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		inv.tools[t.Name()] = t
	}
	for _, id := range catalog.IDs() {
		tmpl, _ := catalog.Get(id)
		for _, name := range tmpl.Tools {
			if _, ok := inv.tools[name]; !ok {
				return nil, fmt.Errorf("template %s references unregistered tool %q", id, name)
			}
		}
	}
	return inv, nil
}

// Provider returns the name of the underlying model backend.
func (inv *Invoker) Provider() string {
	return inv.provider.Name()
}

// Invoke validates the input, renders the template, calls the model and
// decodes its answer into Out. Errors wrap ErrInvalidRequest,
// ErrModelUnavailable or ErrModelResponseInvalid.
func Invoke[Out any](ctx context.Context, inv *Invoker, call Call) (*Out, error) {
	tmpl, ok := inv.catalog.Get(call.Template)
	if !ok {
		return nil, fmt.Errorf("unknown template %q", call.Template)
	}

	if v, ok := call.Input.(Validator); ok {
		if err := v.Validate(); err != nil {
			if !errors.Is(err, ErrInvalidRequest) {
				err = fmt.Errorf("%w: %w", ErrInvalidRequest, err)
			}
			return nil, err
		}
	}

	var media []Media
	if src, ok := call.Input.(MediaSource); ok {
		m, err := src.Media()
		if err != nil {
			return nil, err
		}
		media = m
	}

	schema, err := SchemaFor[Out]()
	if err != nil {
		return nil, err
	}
	prompt, err := tmpl.Render(call.Input)
	if err != nil {
		return nil, err
	}
	instruction, err := schemaInstruction(schema)
	if err != nil {
		return nil, err
	}

	req := &Request{
		TemplateID: tmpl.ID,
		Tier:       tmpl.Tier,
		Prompt:     prompt + instruction,
		Media:      media,
		Schema:     schema,
	}
	for _, name := range tmpl.Tools {
		req.Tools = append(req.Tools, inv.tools[name])
	}

	start := time.Now()
	resp, err := inv.provider.Generate(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("template", tmpl.ID).Str("provider", inv.provider.Name()).Msg("llm call failed")
		if errors.Is(err, ErrModelResponseInvalid) {
			return nil, fmt.Errorf("%s: %w", tmpl.ID, err)
		}
		return nil, fmt.Errorf("%s: %w: %w", tmpl.ID, ErrModelUnavailable, err)
	}

	log.Info().
		Str("template", tmpl.ID).
		Str("provider", inv.provider.Name()).
		Str("model", resp.Model).
		Int("imageCount", len(media)).
		Int("toolCalls", resp.ToolCalls).
		Int64("inputTokens", resp.Usage.InputTokens).
		Int64("outputTokens", resp.Usage.OutputTokens).
		Float64("costUSD", resp.Usage.CostUSD).
		Dur("duration", time.Since(start)).
		Msg("llm call")

	var out Out
	if err := decodeOutput(resp.Text, schema, &out); err != nil {
		log.Warn().Err(err).Str("template", tmpl.ID).Msg("model output failed schema validation")
		return nil, fmt.Errorf("%s: %w", tmpl.ID, err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", tmpl.ID, ErrModelResponseInvalid, err)
		}
	}
	return &out, nil
}
