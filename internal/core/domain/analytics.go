package domain

import "time"

type ReportType string

const (
	ReportSummary    ReportType = "summary"
	ReportFinancial  ReportType = "financial"
	ReportProcessing ReportType = "processing"
)

func (t ReportType) Valid() bool {
	return t == ReportSummary || t == ReportFinancial || t == ReportProcessing
}

type ReportRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

func (r ReportRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

type Report struct {
	Type           ReportType  `json:"reportType"`
	Range          ReportRange `json:"range"`
	GeneratedAt    time.Time   `json:"generatedAt"`
	TotalDocuments int         `json:"totalDocuments"`

	ByStatus   map[string]int `json:"byStatus,omitempty"`
	ByType     map[string]int `json:"byType,omitempty"`
	TotalValue *int64         `json:"totalValue,omitempty"`

	TotalInvoices *int   `json:"totalInvoices,omitempty"`
	TotalReceipts *int   `json:"totalReceipts,omitempty"`
	AverageValue  *int64 `json:"averageValue,omitempty"`

	Successful                   *int     `json:"successful,omitempty"`
	Failed                       *int     `json:"failed,omitempty"`
	SuccessRate                  *float64 `json:"successRate,omitempty"`
	AverageProcessingTimeSeconds *float64 `json:"averageProcessingTimeSeconds,omitempty"`
}

type Trends struct {
	Period         string       `json:"period"`
	Days           int          `json:"days"`
	Points         []DailyCount `json:"points"`
	TotalDocuments int          `json:"totalDocuments"`
}

const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthIdle     = "idle"
)

type Performance struct {
	AverageProcessingSeconds float64 `json:"averageProcessingSeconds"`
	MinProcessingSeconds     float64 `json:"minProcessingSeconds"`
	MaxProcessingSeconds     float64 `json:"maxProcessingSeconds"`
	TotalProcessedRecently   int     `json:"totalProcessedRecently"`
	SystemHealth             string  `json:"systemHealth"`
}
