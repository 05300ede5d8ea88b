package ollama

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

// AnalyzeDocument never fails. Backend errors and unusable output produce a degraded result.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, text, filename string) domain.Analysis {
	if strings.TrimSpace(text) == "" {
		return domain.DegradedAnalysis("no text extracted")
	}

	output, err := a.client.generate(ctx, "analyze", generateRequest{
		System:  analysisSystemPrompt,
		Prompt:  buildAnalysisPrompt(text, filename, a.client.cfg.MaxInputChars),
		Format:  "json",
		Options: a.client.options(a.client.cfg.Temperature),
	})
	if err != nil {
		slog.Warn("document_analysis_degraded", "filename", filename, "reason", "backend", "error", err)
		return domain.DegradedAnalysis("AI backend unavailable")
	}

	analysis, err := parseAnalysis(output)
	if err != nil {
		slog.Warn("document_analysis_degraded", "filename", filename, "reason", "output", "error", err)
		return domain.DegradedAnalysis("unreadable model output")
	}
	return analysis
}
