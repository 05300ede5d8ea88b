package domain

import (
	"math"
	"strings"
)

// Analysis is the structured result of the AI pass over a document's text.
type Analysis struct {
	DocumentType    string   `json:"documentType"`
	Confidence      float64  `json:"confidence"`
	Entities        []Entity `json:"entities"`
	Summary         string   `json:"summary"`
	TotalAmount     *float64 `json:"totalAmount,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ProvisionalType string   `json:"provisionalType,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
}

type Entity struct {
	Kind       string          `json:"kind"`
	Value      string          `json:"value"`
	Confidence float64         `json:"confidence"`
	Position   *EntityPosition `json:"position,omitempty"`
}

type EntityPosition struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (a Analysis) Clone() Analysis {
	out := a
	if a.Entities != nil {
		out.Entities = make([]Entity, len(a.Entities))
		for i, e := range a.Entities {
			out.Entities[i] = e
			if e.Position != nil {
				p := *e.Position
				out.Entities[i].Position = &p
			}
		}
	}
	if a.TotalAmount != nil {
		v := *a.TotalAmount
		out.TotalAmount = &v
	}
	return out
}

// TotalValueCents converts the total amount into integer minor units.
func (a Analysis) TotalValueCents() *int64 {
	if a.TotalAmount == nil || math.IsNaN(*a.TotalAmount) || math.IsInf(*a.TotalAmount, 0) {
		return nil
	}
	cents := int64(math.Round(*a.TotalAmount * 100))
	return &cents
}

// Normalize forces the result into its well-formed shape.
func (a Analysis) Normalize() Analysis {
	out := a.Clone()
	out.DocumentType = NormalizeDocumentType(out.DocumentType)
	out.Confidence = clampUnit(out.Confidence)
	if out.Entities == nil {
		out.Entities = []Entity{}
	}
	for i := range out.Entities {
		out.Entities[i].Kind = strings.TrimSpace(out.Entities[i].Kind)
		out.Entities[i].Confidence = clampUnit(out.Entities[i].Confidence)
	}
	out.Summary = strings.TrimSpace(out.Summary)
	out.Currency = strings.ToUpper(strings.TrimSpace(out.Currency))
	return out
}

// DegradedAnalysis is returned whenever the backend is unavailable or its output is unusable.
func DegradedAnalysis(reason string) Analysis {
	summary := "Analysis failed"
	if reason = strings.TrimSpace(reason); reason != "" {
		summary = "Analysis failed: " + reason
	}
	return Analysis{
		DocumentType: DocumentTypeOther,
		Confidence:   0,
		Entities:     []Entity{},
		Summary:      summary,
		Degraded:     true,
	}
}

func NormalizeDocumentType(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "-", " ")
	switch v {
	case "invoice":
		return DocumentTypeInvoice
	case "contract", "agreement":
		return DocumentTypeContract
	case "receipt", "bill":
		return DocumentTypeReceipt
	case "financial_statement", "financial statement", "statement":
		return DocumentTypeFinancialStatement
	default:
		return DocumentTypeOther
	}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Extraction is the text pulled out of a stored file.
type Extraction struct {
	Text            string
	ProvisionalType string
}
