package bot

import (
	"fmt"
	"strings"

	"github.com/raine/itemcheck/internal/flows"
	"github.com/raine/itemcheck/internal/history"
	"github.com/raine/itemcheck/internal/router"
)

func formatUnifiedResult(res *router.UnifiedResult) string {
	switch res.AnalysisType {
	case router.AnalysisListing:
		if res.ListingAnalysis != nil {
			return formatListingAnalysis(res.ListingAnalysis)
		}
	case router.AnalysisSearch:
		if res.ProductSearch != nil {
			return formatProductSearch(res.ProductSearch)
		}
	}
	return "No result."
}

func formatListingAnalysis(a *flows.ListingAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall: %.1f/10. %s\n", a.OverallScore.Score, a.OverallScore.Reason)
	fmt.Fprintf(&sb, "Listing quality: %.1f/10. %s\n", a.ListingQuality.Score, a.ListingQuality.Reason)
	writeList(&sb, "Strengths", a.ListingQuality.Strengths)
	writeList(&sb, "Weaknesses", a.ListingQuality.Weaknesses)
	writeList(&sb, "Suggestions", a.ListingQuality.Suggestions)

	fair := "not fair"
	if a.PriceFairness.IsFair {
		fair = "fair"
	}
	fmt.Fprintf(&sb, "Price: %s. %s", fair, a.PriceFairness.Reason)
	if a.PriceFairness.MarketValue != "" {
		fmt.Fprintf(&sb, " Market value: %s.", a.PriceFairness.MarketValue)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Seller: %.1f/10. %s", a.SellerReliability.Score, a.SellerReliability.Reason)

	info := a.ExtractedInfo
	var details []string
	for _, d := range []string{info.Brand, info.Model, info.ItemCondition} {
		if d != "" {
			details = append(details, d)
		}
	}
	if len(details) > 0 {
		fmt.Fprintf(&sb, "\nItem: %s", strings.Join(details, ", "))
	}
	return sb.String()
}

func formatProductSearch(r *flows.ProductSearchResult) string {
	var sb strings.Builder
	verdict := "Not recommended"
	if r.OverallVerdict.IsRecommended {
		verdict = "Recommended"
	}
	fmt.Fprintf(&sb, "%s. %s\n", verdict, r.OverallVerdict.Reason)
	if r.OverallVerdict.BestPlatform != "" {
		fmt.Fprintf(&sb, "Best platform: %s\n", r.OverallVerdict.BestPlatform)
	}
	for _, c := range r.Comparisons {
		fmt.Fprintf(&sb, "\n%s: %s", c.Platform, c.BestPrice)
		if c.DeliveryConditions != "" {
			fmt.Fprintf(&sb, " (%s)", c.DeliveryConditions)
		}
		fmt.Fprintf(&sb, "\n%s\n", c.BestListingURL)
	}
	writeSuggestions(&sb, "Similar items", r.SimilarItems)
	writeSuggestions(&sb, "Alternatives", r.AlternativeReplacements)
	if len(r.SuggestedPaymentMethods) > 0 {
		fmt.Fprintf(&sb, "\nPay with: %s", strings.Join(r.SuggestedPaymentMethods, ", "))
	}
	return strings.TrimSpace(sb.String())
}

func formatDamageReport(r *flows.DamageReport) string {
	var sb strings.Builder
	sb.WriteString(r.Summary)
	for _, issue := range r.IssuesFound {
		fmt.Fprintf(&sb, "\n- %s: %s", issue.Area, issue.Description)
	}
	return sb.String()
}

func formatBiasAnalysis(a *flows.BiasAnalysis) string {
	var sb strings.Builder
	sb.WriteString(a.Summary)

	found := false
	for _, b := range []struct {
		name    string
		finding flows.BiasFinding
	}{
		{"Political", a.Biases.Political},
		{"Gender", a.Biases.Gender},
		{"Confirmation", a.Biases.Confirmation},
	} {
		if !b.finding.IsPresent {
			continue
		}
		found = true
		detail := b.finding.Explanation
		if b.finding.Evidence != "" {
			detail = fmt.Sprintf("%q %s", b.finding.Evidence, detail)
		}
		sb.WriteString("\n")
		fmt.Fprintf(&sb, MsgBiasFindingFmt, b.name, strings.TrimSpace(detail))
	}
	if !found {
		sb.WriteString("\n" + MsgBiasNone)
	}
	if a.Contradictions.IsContradictory {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, MsgContradiction, a.Contradictions.Contradiction)
	}
	return sb.String()
}

func formatImageTextAnalysis(a *flows.ImageTextAnalysis) string {
	if a.ExtractedText == "" {
		return a.Analysis.Summary
	}
	return fmt.Sprintf(MsgExtractedTextFmt, a.ExtractedText) + "\n\n" + formatBiasAnalysis(&a.Analysis)
}

func formatHistory(list []history.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, MsgHistoryHeader, pluralize("entry", "entries", len(list)))
	for _, s := range list {
		fmt.Fprintf(&sb, "\n\n%s  %s\n%s", s.CreatedAt.Format("2006-01-02 15:04"), s.AnalysisType, s.Query)
		switch {
		case s.OverallScore != nil:
			fmt.Fprintf(&sb, " (%.1f/10)", *s.OverallScore)
		case s.Recommended != nil && *s.Recommended:
			sb.WriteString(" (recommended)")
		case s.Recommended != nil:
			sb.WriteString(" (not recommended)")
		}
		fmt.Fprintf(&sb, "\n/show %s", s.ID)
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func writeSuggestions(sb *strings.Builder, title string, items []flows.Suggestion) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n%s:", title)
	for _, item := range items {
		fmt.Fprintf(sb, "\n- %s: %s", item.Name, item.Reason)
	}
	sb.WriteString("\n")
}
