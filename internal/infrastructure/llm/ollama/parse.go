package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

var errMissingDocumentType = errors.New("model output has no document type")

type rawAnalysis struct {
	DocumentType       json.RawMessage `json:"documentType"`
	LegacyDocumentType json.RawMessage `json:"document_type"`
	Confidence         json.RawMessage `json:"confidence"`
	Entities           json.RawMessage `json:"entities"`
	Summary            json.RawMessage `json:"summary"`
	TotalAmount        json.RawMessage `json:"totalAmount"`
	LegacyTotalAmount  json.RawMessage `json:"total_amount"`
	Currency           json.RawMessage `json:"currency"`
}

type rawEntity struct {
	Kind       json.RawMessage `json:"kind"`
	Type       json.RawMessage `json:"type"`
	Value      json.RawMessage `json:"value"`
	Confidence json.RawMessage `json:"confidence"`
	Position   json.RawMessage `json:"position"`
}

// parseAnalysis validates untrusted model output against the analysis shape.
func parseAnalysis(output string) (domain.Analysis, error) {
	var raw rawAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(output)), &raw); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse analysis json: %w", err)
	}

	docType := rawString(raw.DocumentType)
	if docType == "" {
		docType = rawString(raw.LegacyDocumentType)
	}
	if docType == "" {
		return domain.Analysis{}, errMissingDocumentType
	}

	out := domain.Analysis{
		DocumentType: docType,
		Summary:      rawString(raw.Summary),
		Currency:     rawString(raw.Currency),
	}
	if v, ok := rawNumber(raw.Confidence); ok {
		out.Confidence = confidenceUnit(v)
	}

	total, hasTotal := rawNumber(raw.TotalAmount)
	if !hasTotal {
		total, hasTotal = rawNumber(raw.LegacyTotalAmount)
	}

	entities, legacy := parseEntities(raw.Entities, out.Confidence)
	out.Entities = entities
	if !hasTotal {
		total, hasTotal = rawNumber(legacy["total_amount"])
	}
	if out.Currency == "" {
		out.Currency = rawString(legacy["currency"])
	}
	if hasTotal {
		out.TotalAmount = &total
	}
	return out.Normalize(), nil
}

// parseEntities accepts a list of entity objects, or a flat object of named fields. The
// flat fields are returned as well so callers can lift totals out of them.
func parseEntities(raw json.RawMessage, defaultConfidence float64) ([]domain.Entity, map[string]json.RawMessage) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Entity{}, nil
	}

	var list []rawEntity
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]domain.Entity, 0, len(list))
		for _, item := range list {
			kind := rawString(item.Kind)
			if kind == "" {
				kind = rawString(item.Type)
			}
			value := rawString(item.Value)
			if kind == "" && value == "" {
				continue
			}
			entity := domain.Entity{Kind: kind, Value: value, Confidence: defaultConfidence}
			if v, ok := rawNumber(item.Confidence); ok {
				entity.Confidence = confidenceUnit(v)
			}
			var pos domain.EntityPosition
			if len(item.Position) > 0 && json.Unmarshal(item.Position, &pos) == nil {
				entity.Position = &pos
			}
			out = append(out, entity)
		}
		return out, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return []domain.Entity{}, nil
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.Entity, 0, len(keys))
	for _, k := range keys {
		value := rawString(flat[k])
		if value == "" {
			continue
		}
		out = append(out, domain.Entity{Kind: k, Value: value, Confidence: defaultConfidence})
	}
	return out, flat
}

// extractJSONObject strips markdown fences and returns the outermost JSON object.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// rawString returns string values as is and any other scalar or structure as compact JSON.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

// rawNumber reads a JSON number or a string like "$1,234.50".
func rawNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// confidenceUnit maps percentages such as 95 onto [0,1].
func confidenceUnit(v float64) float64 {
	if v > 1 && v <= 100 {
		return v / 100
	}
	return v
}
