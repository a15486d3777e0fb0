// Package flows implements the listing, image, text and shopping analyses on
// top of the prompt templates in prompts/.
package flows

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raine/itemcheck/internal/llm"
	"github.com/rs/zerolog/log"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

const (
	templateAnalyzeListing = "analyze-listing"
	templateImageDamage    = "analyze-image-damage"
	templateTextBias       = "analyze-text-bias"
	templateExtractText    = "extract-image-text"
	templatePriceFairness  = "check-price-fairness"
	templateListingQuality = "assess-listing-quality"
	templateProductSearch  = "product-search"
	templateClassifyIntent = "classify-intent"
)

// LoadCatalog parses the embedded prompt templates.
func LoadCatalog() (*llm.Catalog, error) {
	return llm.LoadCatalog(promptFS, "prompts/*.yaml")
}

// Service runs the flows against one model provider.
type Service struct {
	inv *llm.Invoker
}

// NewService binds the embedded templates and the given search tools to
// provider.
func NewService(provider llm.Provider, tools Toolset) (*Service, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog: %w", err)
	}
	inv, err := llm.NewInvoker(provider, catalog, tools.llmTools()...)
	if err != nil {
		return nil, err
	}
	return &Service{inv: inv}, nil
}

// AnalyzeListing assesses a listing's quality, price fairness and seller
// reliability.
func (s *Service) AnalyzeListing(ctx context.Context, in ListingInput) (*ListingAnalysis, error) {
	return llm.Invoke[ListingAnalysis](ctx, s.inv, llm.Call{Template: templateAnalyzeListing, Input: in})
}

func (s *Service) AnalyzeImageForDamage(ctx context.Context, in ImageInput) (*DamageReport, error) {
	return llm.Invoke[DamageReport](ctx, s.inv, llm.Call{Template: templateImageDamage, Input: in})
}

func (s *Service) AnalyzeTextForBias(ctx context.Context, in TextInput) (*BiasAnalysis, error) {
	return llm.Invoke[BiasAnalysis](ctx, s.inv, llm.Call{Template: templateTextBias, Input: in})
}

// ExtractAndAnalyzeImage reads the text in an image and analyzes it for
// bias. Images without enough text return a placeholder analysis without a
// second model call.
func (s *Service) ExtractAndAnalyzeImage(ctx context.Context, in ImageInput) (*ImageTextAnalysis, error) {
	ocr, err := llm.Invoke[ocrResult](ctx, s.inv, llm.Call{Template: templateExtractText, Input: in})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(ocr.ExtractedText)
	if text == "" {
		log.Info().Msg("no text found in image, skipping bias analysis")
		return &ImageTextAnalysis{ExtractedText: "", Analysis: emptyAnalysis(NoTextSummary)}, nil
	}
	if utf8.RuneCountInString(text) < MinBiasTextLength {
		log.Info().Int("length", utf8.RuneCountInString(text)).Msg("extracted text too short, skipping bias analysis")
		return &ImageTextAnalysis{ExtractedText: text, Analysis: emptyAnalysis(ShortTextSummary)}, nil
	}

	analysis, err := s.AnalyzeTextForBias(ctx, TextInput{Text: text})
	if err != nil {
		return nil, err
	}
	return &ImageTextAnalysis{ExtractedText: text, Analysis: *analysis}, nil
}

func emptyAnalysis(summary string) BiasAnalysis {
	return BiasAnalysis{Summary: summary}
}

func (s *Service) CheckPriceFairness(ctx context.Context, in PriceFairnessInput) (*PriceFairnessResult, error) {
	return llm.Invoke[PriceFairnessResult](ctx, s.inv, llm.Call{Template: templatePriceFairness, Input: in})
}

func (s *Service) AssessListingQuality(ctx context.Context, in QualityInput) (*QualityAssessment, error) {
	return llm.Invoke[QualityAssessment](ctx, s.inv, llm.Call{Template: templateListingQuality, Input: in})
}

// ProductSearchAndAnalysis compares offers for a product across the
// configured marketplaces.
func (s *Service) ProductSearchAndAnalysis(ctx context.Context, in ProductSearchInput) (*ProductSearchResult, error) {
	return llm.Invoke[ProductSearchResult](ctx, s.inv, llm.Call{Template: templateProductSearch, Input: in})
}

// ClassifyIntent decides whether a query asks for a listing analysis or a
// product search.
func (s *Service) ClassifyIntent(ctx context.Context, in IntentInput) (*IntentResult, error) {
	return llm.Invoke[IntentResult](ctx, s.inv, llm.Call{Template: templateClassifyIntent, Input: in})
}
