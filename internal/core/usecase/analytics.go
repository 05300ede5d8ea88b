package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

const (
	defaultTrendDays         = 30
	maxTrendDays             = 3650
	performanceSampleSize    = 100
	healthyAverageProcessing = 60.0
)

// AnalyticsUseCase computes read-only views over the document store.
type AnalyticsUseCase struct {
	repo ports.DocumentRepository
	loc  *time.Location
	now  func() time.Time
}

func NewAnalyticsUseCase(repo ports.DocumentRepository, loc *time.Location) *AnalyticsUseCase {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsUseCase{repo: repo, loc: loc, now: time.Now}
}

func (uc *AnalyticsUseCase) Dashboard(ctx context.Context, ownerID string) (domain.DocumentStats, error) {
	stats, err := uc.repo.Stats(ctx, ownerID, uc.now())
	if err != nil {
		return domain.DocumentStats{}, fmt.Errorf("compute stats: %w", err)
	}
	return stats, nil
}

func (uc *AnalyticsUseCase) ProcessingQueue(ctx context.Context, ownerID string) ([]domain.QueueItem, error) {
	items, err := uc.repo.ProcessingQueue(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("compute processing queue: %w", err)
	}
	return items, nil
}

func (uc *AnalyticsUseCase) Report(ctx context.Context, ownerID string, reportType domain.ReportType, rng domain.ReportRange) (*domain.Report, error) {
	if reportType == "" {
		reportType = domain.ReportSummary
	}
	if !reportType.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate report", fmt.Errorf("unknown report type %q", reportType))
	}
	if rng.From != nil && rng.To != nil && rng.From.After(*rng.To) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate report", fmt.Errorf("dateFrom is after dateTo"))
	}

	all, err := uc.repo.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(all))
	for _, doc := range all {
		if rng.Contains(doc.UploadedAt) {
			docs = append(docs, doc)
		}
	}

	report := &domain.Report{Type: reportType, Range: rng, GeneratedAt: uc.now().UTC()}
	switch reportType {
	case domain.ReportSummary:
		summaryReport(report, docs)
	case domain.ReportFinancial:
		financialReport(report, docs)
	case domain.ReportProcessing:
		processingReport(report, docs)
	}
	return report, nil
}

func summaryReport(r *domain.Report, docs []domain.Document) {
	r.TotalDocuments = len(docs)
	r.ByStatus = map[string]int{
		string(domain.StatusPending):    0,
		string(domain.StatusProcessing): 0,
		string(domain.StatusCompleted):  0,
		string(domain.StatusFailed):     0,
	}
	r.ByType = map[string]int{}
	var total int64
	for _, doc := range docs {
		r.ByStatus[string(doc.Status)]++
		r.ByType[typeOf(doc)]++
		if doc.TotalValue != nil {
			total += *doc.TotalValue
		}
	}
	r.TotalValue = &total
}

func financialReport(r *domain.Report, docs []domain.Document) {
	var invoices, receipts int
	var total int64
	for _, doc := range docs {
		switch typeOf(doc) {
		case domain.DocumentTypeInvoice:
			invoices++
		case domain.DocumentTypeReceipt:
			receipts++
		default:
			continue
		}
		if doc.TotalValue != nil {
			total += *doc.TotalValue
		}
	}
	var average int64
	if n := invoices + receipts; n > 0 {
		average = total / int64(n)
	}
	r.TotalDocuments = invoices + receipts
	r.TotalInvoices = &invoices
	r.TotalReceipts = &receipts
	r.TotalValue = &total
	r.AverageValue = &average
}

func processingReport(r *domain.Report, docs []domain.Document) {
	var completed, failed int
	var seconds float64
	for _, doc := range docs {
		switch doc.Status {
		case domain.StatusCompleted:
			completed++
			if doc.ProcessedAt != nil {
				seconds += doc.ProcessedAt.Sub(doc.UploadedAt).Seconds()
			}
		case domain.StatusFailed:
			failed++
		}
	}
	var average float64
	if completed > 0 {
		average = seconds / float64(completed)
	}
	rate := domain.SuccessRate(completed, failed)
	r.TotalDocuments = completed + failed
	r.Successful = &completed
	r.Failed = &failed
	r.SuccessRate = &rate
	r.AverageProcessingTimeSeconds = &average
}

// Trends returns a dense daily upload series covering period, ending today.
func (uc *AnalyticsUseCase) Trends(ctx context.Context, ownerID, period string) (*domain.Trends, error) {
	days, err := ParsePeriodDays(period)
	if err != nil {
		return nil, err
	}
	docs, err := uc.repo.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	today := uc.now().In(uc.loc)
	points := make([]domain.DailyCount, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		key := domain.DateKey(today.AddDate(0, 0, i-(days-1)), uc.loc)
		points[i] = domain.DailyCount{Date: key}
		index[key] = i
	}

	total := 0
	for _, doc := range docs {
		if i, ok := index[domain.DateKey(doc.UploadedAt, uc.loc)]; ok {
			points[i].Count++
			total++
		}
	}
	return &domain.Trends{
		Period:         strconv.Itoa(days) + "d",
		Days:           days,
		Points:         points,
		TotalDocuments: total,
	}, nil
}

// ParsePeriodDays accepts "30d", "30" or "" (30 days).
func ParsePeriodDays(period string) (int, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return defaultTrendDays, nil
	}
	p = strings.TrimSuffix(p, "d")
	days, err := strconv.Atoi(p)
	if err != nil || days <= 0 || days > maxTrendDays {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse period", fmt.Errorf("invalid period %q", period))
	}
	return days, nil
}

// Performance summarises processing time over recently completed documents of all users.
func (uc *AnalyticsUseCase) Performance(ctx context.Context) (*domain.Performance, error) {
	docs, err := uc.repo.RecentlyCompleted(ctx, performanceSampleSize)
	if err != nil {
		return nil, fmt.Errorf("load completed documents: %w", err)
	}
	out := &domain.Performance{SystemHealth: domain.HealthIdle}
	if len(docs) == 0 {
		return out, nil
	}

	var sum float64
	for i, doc := range docs {
		d := doc.ProcessedAt.Sub(doc.UploadedAt).Seconds()
		sum += d
		if i == 0 || d < out.MinProcessingSeconds {
			out.MinProcessingSeconds = d
		}
		if i == 0 || d > out.MaxProcessingSeconds {
			out.MaxProcessingSeconds = d
		}
	}
	out.TotalProcessedRecently = len(docs)
	out.AverageProcessingSeconds = sum / float64(len(docs))
	if out.AverageProcessingSeconds < healthyAverageProcessing {
		out.SystemHealth = domain.HealthHealthy
	} else {
		out.SystemHealth = domain.HealthDegraded
	}
	return out, nil
}

func typeOf(doc domain.Document) string {
	if doc.DocumentType == nil || *doc.DocumentType == "" {
		return domain.DocumentTypeUnknown
	}
	return *doc.DocumentType
}
