package extractor

import (
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

var typeKeywords = []struct {
	docType  string
	keywords []string
}{
	{domain.DocumentTypeInvoice, []string{"invoice", "invoice number", "bill to", "amount due"}},
	{domain.DocumentTypeReceipt, []string{"receipt", "thank you for your purchase", "change due", "cashier"}},
	{domain.DocumentTypeContract, []string{"agreement", "contract", "hereinafter", "the parties"}},
	{domain.DocumentTypeFinancialStatement, []string{"balance sheet", "income statement", "cash flow", "statement of"}},
}

// GuessDocumentType scores keyword hits and returns the best type, or "other".
func GuessDocumentType(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := domain.DocumentTypeOther, 0
	for _, candidate := range typeKeywords {
		score := 0
		for _, kw := range candidate.keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = candidate.docType, score
		}
	}
	return best
}
