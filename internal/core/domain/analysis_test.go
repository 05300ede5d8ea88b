package domain

import (
	"math"
	"testing"
)

func TestNormalizeDocumentType(t *testing.T) {
	cases := map[string]string{
		"Invoice":             DocumentTypeInvoice,
		"financial statement": DocumentTypeFinancialStatement,
		"statement":           DocumentTypeFinancialStatement,
		"bill":                DocumentTypeReceipt,
		"Agreement":           DocumentTypeContract,
		"purchase order":      DocumentTypeOther,
		"":                    DocumentTypeOther,
	}
	for raw, want := range cases {
		if got := NormalizeDocumentType(raw); got != want {
			t.Fatalf("NormalizeDocumentType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestAnalysisNormalizeClampsConfidence(t *testing.T) {
	a := Analysis{DocumentType: "receipt", Confidence: 1.7, Entities: []Entity{{Kind: " vendor ", Confidence: -1}}}.Normalize()
	if a.Confidence != 1 || a.Entities[0].Confidence != 0 || a.Entities[0].Kind != "vendor" {
		t.Fatalf("unexpected normalized analysis %+v", a)
	}
	if b := (Analysis{Confidence: math.NaN()}).Normalize(); b.Confidence != 0 || b.Entities == nil {
		t.Fatalf("NaN confidence must clamp to 0 and entities must be a list: %+v", b)
	}
}

func TestTotalValueCentsRounds(t *testing.T) {
	amount := 1234.56
	cents := Analysis{TotalAmount: &amount}.TotalValueCents()
	if cents == nil || *cents != 123456 {
		t.Fatalf("expected 123456 cents, got %v", cents)
	}
	if (Analysis{}).TotalValueCents() != nil {
		t.Fatalf("missing total must stay nil")
	}
}

func TestDegradedAnalysisShape(t *testing.T) {
	a := DegradedAnalysis("backend unavailable")
	if a.DocumentType != DocumentTypeOther || a.Confidence != 0 || a.Entities == nil || len(a.Entities) != 0 || !a.Degraded {
		t.Fatalf("unexpected degraded analysis %+v", a)
	}
	if a.Summary != "Analysis failed: backend unavailable" {
		t.Fatalf("unexpected summary %q", a.Summary)
	}
}
