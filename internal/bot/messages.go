package bot

// =============================================================================
// General messages
// =============================================================================

const MsgStart = `
		Send me a listing description or a listing URL and I will assess its
		quality, price and seller. Send a product name and I will compare offers
		on eBay, Amazon and AliExpress. A photo with a caption works too.

		/damage - photo caption, check the item for damage
		/ocr - photo caption, read the text in the image and check it for bias
		/bias <text> - check a text for bias and contradictions
		/history - your recent analyses
		/show <id> - show one analysis from your history`

const (
	MsgUnexpectedErr     = `Unexpected error: %s`
	MsgPhotoNeedsCaption = "Add a caption describing the item, or use /damage or /ocr as the caption."
	MsgPhotoRequired     = "Send a photo with %s as its caption."
	MsgAnalysisFailed    = "The analysis could not be completed: %s"
	MsgServiceBusy       = "The analysis service is unavailable right now. Please try again later."
	MsgInvalidInput      = "I could not use that input: %s"
)

// =============================================================================
// Bias messages
// =============================================================================

const (
	MsgBiasUsage        = "Usage: /bias <text to analyze>"
	MsgBiasNone         = "No bias found."
	MsgBiasFindingFmt   = "- %s: %s"
	MsgContradiction    = "Contradiction: %s"
	MsgExtractedTextFmt = "Text in image:\n%s"
)

// =============================================================================
// History messages
// =============================================================================

const (
	MsgHistoryEmpty       = "You have no saved analyses yet."
	MsgHistoryHeader      = "Your analyses (%s):"
	MsgShowUsage          = "Usage: /show <id>"
	MsgHistoryNotFound    = "No analysis with that id."
	MsgHistoryUnavailable = "History is not available."
)
