package flows

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/raine/itemcheck/internal/llm"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// MinBiasTextLength is the shortest text the bias analysis accepts.
const MinBiasTextLength = 20

// NoTextSummary is returned as the analysis summary when OCR finds no text.
const NoTextSummary = "No text could be extracted from the provided image."

// ShortTextSummary is returned when OCR finds too little text to analyze.
const ShortTextSummary = "The extracted text is too short to analyze for bias."

type ListingInput struct {
	Description string `json:"description"`
	ListingURL  string `json:"listingUrl,omitempty"`
	Image       string `json:"image,omitempty"`
}

func (in ListingInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description is required", llm.ErrInvalidRequest)
	}
	if in.ListingURL != "" {
		if err := ValidateURL(in.ListingURL); err != nil {
			return err
		}
	}
	return nil
}

func (in ListingInput) Media() ([]llm.Media, error) { return optionalImage(in.Image) }

type ScoreAndReason struct {
	Score  float64 `json:"score" description:"A score from 0 (worst) to 10 (best)."`
	Reason string  `json:"reason" description:"A concise explanation for the given score."`
}

type ListingQuality struct {
	Score       float64  `json:"score" description:"A score from 0 (worst) to 10 (best)."`
	Reason      string   `json:"reason" description:"A concise explanation for the given score."`
	Strengths   []string `json:"strengths" description:"Specific aspects of the listing that are well-done."`
	Weaknesses  []string `json:"weaknesses" description:"Specific aspects of the listing that are weak or missing."`
	Suggestions []string `json:"suggestions" description:"Actionable suggestions for how the seller could improve the listing."`
}

type PriceFairness struct {
	IsFair      bool   `json:"isFair" description:"Whether the listing price is considered fair compared to the market."`
	MarketValue string `json:"marketValue,omitempty" description:"The estimated fair market value or price range."`
	Reason      string `json:"reason" description:"A concise explanation for the price fairness determination."`
}

type ExtractedInfo struct {
	ItemCondition string `json:"itemCondition,omitempty" description:"The condition of the item (e.g. New, Used, For parts)."`
	Brand         string `json:"brand,omitempty" description:"The brand or manufacturer of the item."`
	Model         string `json:"model,omitempty" description:"The model name or number of the item."`
}

// ListingAnalysis is the full assessment of one listing.
type ListingAnalysis struct {
	OverallScore      ScoreAndReason `json:"overallScore" description:"An overall assessment of the listing, taking all factors into account."`
	ListingQuality    ListingQuality `json:"listingQuality"`
	PriceFairness     PriceFairness  `json:"priceFairness"`
	SellerReliability ScoreAndReason `json:"sellerReliability" description:"An inferred assessment of the seller's reliability based on the listing's content and presentation."`
	ExtractedInfo     ExtractedInfo  `json:"extractedInfo" description:"Key information extracted from the listing text and image."`
}

func (a *ListingAnalysis) Validate() error {
	return errors.Join(
		checkScore("overallScore", a.OverallScore.Score),
		checkScore("listingQuality", a.ListingQuality.Score),
		checkScore("sellerReliability", a.SellerReliability.Score),
	)
}

type ImageInput struct {
	Image string `json:"image"`
}

func (in ImageInput) Validate() error {
	if strings.TrimSpace(in.Image) == "" {
		return fmt.Errorf("%w: image is required", llm.ErrInvalidRequest)
	}
	return nil
}

func (in ImageInput) Media() ([]llm.Media, error) { return optionalImage(in.Image) }

type DamageIssue struct {
	Area        string `json:"area" description:"The part of the item where the issue is located (e.g. Screen, Left corner, Leather strap)."`
	Description string `json:"description" description:"A detailed description of the issue including its severity (e.g. Deep scratch, Minor scuffing)."`
}

type DamageReport struct {
	Summary     string        `json:"summary" description:"A one-sentence summary of the overall condition of the item based on the image."`
	IssuesFound []DamageIssue `json:"issuesFound" description:"All specific damages or issues identified in the image. Empty if none."`
}

type TextInput struct {
	Text string `json:"text"`
}

func (in TextInput) Validate() error {
	if utf8.RuneCountInString(in.Text) < MinBiasTextLength {
		return fmt.Errorf("%w: text must be at least %d characters", llm.ErrInvalidRequest, MinBiasTextLength)
	}
	return nil
}

type BiasFinding struct {
	IsPresent   bool   `json:"isPresent" description:"Whether this type of bias is present in the text."`
	Evidence    string `json:"evidence,omitempty" description:"The text snippet that demonstrates the bias. Only include if bias is present."`
	Explanation string `json:"explanation,omitempty" description:"Why the text is considered biased. Only include if bias is present."`
}

type Biases struct {
	Political    BiasFinding `json:"political"`
	Gender       BiasFinding `json:"gender"`
	Confirmation BiasFinding `json:"confirmation" description:"Confirmation bias, where the text favors information that confirms pre-existing beliefs."`
}

type ContradictionFinding struct {
	IsContradictory bool   `json:"isContradictory" description:"Whether the text contains internal contradictions."`
	Contradiction   string `json:"contradiction,omitempty" description:"The contradictory statement or idea. Only include if present."`
	Explanation     string `json:"explanation,omitempty" description:"A brief explanation of the contradiction. Only include if present."`
}

type BiasAnalysis struct {
	Summary        string               `json:"summary" description:"A high-level summary of the analysis findings."`
	Biases         Biases               `json:"biases"`
	Contradictions ContradictionFinding `json:"contradictions"`
}

type ocrResult struct {
	ExtractedText string `json:"extractedText" description:"All text found in the image, or an empty string if there is none."`
}

type ImageTextAnalysis struct {
	ExtractedText string       `json:"extractedText"`
	Analysis      BiasAnalysis `json:"analysis"`
}

type PriceFairnessInput struct {
	ListingDescription string  `json:"listingDescription"`
	ListingPrice       float64 `json:"listingPrice"`
}

func (in PriceFairnessInput) Validate() error {
	if strings.TrimSpace(in.ListingDescription) == "" {
		return fmt.Errorf("%w: listing description is required", llm.ErrInvalidRequest)
	}
	if in.ListingPrice < 0 {
		return fmt.Errorf("%w: listing price must not be negative", llm.ErrInvalidRequest)
	}
	return nil
}

type PriceFairnessResult struct {
	IsFairPrice         bool   `json:"isFairPrice" description:"Whether the listing price is fair compared to similar items found by the tool."`
	FairnessExplanation string `json:"fairnessExplanation" description:"Why the price is considered fair or unfair, considering the comparable items."`
	SuggestedPriceRange string `json:"suggestedPriceRange" description:"A suggested price range based on comparable items."`
}

type QualityInput struct {
	OCRText         string `json:"ocrText"`
	Description     string `json:"description"`
	FilledOutFields string `json:"filledOutFields"`
}

func (in QualityInput) Validate() error {
	if strings.TrimSpace(in.Description) == "" && strings.TrimSpace(in.OCRText) == "" {
		return fmt.Errorf("%w: description or OCR text is required", llm.ErrInvalidRequest)
	}
	return nil
}

type QualityAssessment struct {
	QualityScore float64 `json:"qualityScore" description:"A score between 0 and 1 representing the overall quality of the listing."`
	Strengths    string  `json:"strengths" description:"A summary of the listing strengths."`
	Weaknesses   string  `json:"weaknesses" description:"A summary of the listing weaknesses."`
	Suggestions  string  `json:"suggestions" description:"Suggestions for improving the listing."`
}

func (q *QualityAssessment) Validate() error {
	if q.QualityScore < 0 || q.QualityScore > 1 {
		return fmt.Errorf("qualityScore %v out of range [0, 1]", q.QualityScore)
	}
	return nil
}

type ProductSearchInput struct {
	Query string `json:"query"`
}

func (in ProductSearchInput) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return fmt.Errorf("%w: query is required", llm.ErrInvalidRequest)
	}
	return nil
}

type Verdict struct {
	IsRecommended bool   `json:"isRecommended" description:"Whether purchasing this product is recommended based on the analysis."`
	Reason        string `json:"reason" description:"Why the product is or is not recommended."`
	BestPlatform  string `json:"bestPlatform,omitempty" description:"The platform with the overall best offer."`
}

type PlatformComparison struct {
	Platform           string `json:"platform" description:"The e-commerce platform (e.g. eBay, Amazon)."`
	BestPrice          string `json:"bestPrice" description:"The best price found on the platform."`
	DeliveryConditions string `json:"deliveryConditions" description:"Summary of the delivery conditions (e.g. 1-2 day shipping)."`
	BestListingURL     string `json:"bestListingUrl" description:"URL of the best listing found."`
}

type Suggestion struct {
	Name   string `json:"name" description:"Name of the item."`
	Reason string `json:"reason" description:"Why this item is a good alternative."`
}

// ProductSearchResult is the shopping recommendation for a product query.
type ProductSearchResult struct {
	OverallVerdict          Verdict              `json:"overallVerdict"`
	Comparisons             []PlatformComparison `json:"comparisons" description:"The best offer found on each platform."`
	SimilarItems            []Suggestion         `json:"similarItems" description:"Similar or alternative products."`
	AlternativeReplacements []Suggestion         `json:"alternativeReplacements" description:"Items that could replace the need for the searched product."`
	SuggestedPaymentMethods []string             `json:"suggestedPaymentMethods" description:"Easy and secure payment methods (e.g. Credit Card, PayPal)."`
}

func (r *ProductSearchResult) Validate() error {
	var errs []error
	for _, c := range r.Comparisons {
		if !isWebURL(c.BestListingURL) {
			errs = append(errs, fmt.Errorf("comparison %s: %q is not a valid URL", c.Platform, c.BestListingURL))
		}
	}
	return errors.Join(errs...)
}

const (
	IntentAnalysis = "analysis"
	IntentSearch   = "search"
)

type IntentInput struct {
	Query string `json:"query"`
}

func (in IntentInput) Validate() error {
	if strings.TrimSpace(in.Query) == "" {
		return fmt.Errorf("%w: query is required", llm.ErrInvalidRequest)
	}
	return nil
}

type IntentResult struct {
	Intent string `json:"intent" description:"analysis for a specific listing, search for a general product."`
}

// PatchSchema restricts intent to the two known labels.
func (r *IntentResult) PatchSchema(def *jsonschema.Definition) {
	prop := def.Properties["intent"]
	prop.Enum = []string{IntentAnalysis, IntentSearch}
	def.Properties["intent"] = prop
}

func (r *IntentResult) Validate() error {
	if r.Intent != IntentAnalysis && r.Intent != IntentSearch {
		return fmt.Errorf("unknown intent %q", r.Intent)
	}
	return nil
}

// ValidateURL checks that s is an absolute http(s) URL.
func ValidateURL(s string) error {
	if !isWebURL(s) {
		return fmt.Errorf("%w: %q is not a valid URL", llm.ErrInvalidRequest, s)
	}
	return nil
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func checkScore(field string, score float64) error {
	if score < 0 || score > 10 {
		return fmt.Errorf("%s score %v out of range [0, 10]", field, score)
	}
	return nil
}

func optionalImage(image string) ([]llm.Media, error) {
	if image == "" {
		return nil, nil
	}
	m, err := llm.ParseDataURI(image)
	if err != nil {
		return nil, err
	}
	return []llm.Media{m}, nil
}
