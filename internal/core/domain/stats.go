package domain

import (
	"time"
)

const dailySeriesLength = 7

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type DocumentStats struct {
	TotalDocuments    int            `json:"totalDocuments"`
	DocumentsByType   map[string]int `json:"documentsByType"`
	DocumentsByStatus map[string]int `json:"documentsByStatus"`
	TotalValue        int64          `json:"totalValue"`
	ProcessedToday    int            `json:"processedToday"`
	SuccessRate       float64        `json:"successRate"`
	DailyProcessing   []DailyCount   `json:"dailyProcessing"`
}

type QueueItem struct {
	ID       string          `json:"id"`
	Filename string          `json:"filename"`
	Status   DocumentStatus  `json:"status"`
	Stage    ProcessingStage `json:"stage,omitempty"`
	Progress int             `json:"progress"`
	Type     string          `json:"type"`
}

// DateKey formats t as a calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

// BuildStats aggregates a snapshot of one owner's documents.
func BuildStats(docs []Document, now time.Time, loc *time.Location) DocumentStats {
	if loc == nil {
		loc = time.UTC
	}
	stats := DocumentStats{
		TotalDocuments:    len(docs),
		DocumentsByType:   map[string]int{},
		DocumentsByStatus: map[string]int{},
		DailyProcessing:   make([]DailyCount, dailySeriesLength),
	}

	today := now.In(loc)
	index := make(map[string]int, dailySeriesLength)
	for i := 0; i < dailySeriesLength; i++ {
		day := today.AddDate(0, 0, i-(dailySeriesLength-1))
		key := DateKey(day, loc)
		stats.DailyProcessing[i] = DailyCount{Date: key}
		index[key] = i
	}
	todayKey := DateKey(today, loc)

	var completed, failed int
	for _, doc := range docs {
		docType := DocumentTypeUnknown
		if doc.DocumentType != nil && *doc.DocumentType != "" {
			docType = *doc.DocumentType
		}
		stats.DocumentsByType[docType]++
		stats.DocumentsByStatus[string(doc.Status)]++
		if doc.TotalValue != nil {
			stats.TotalValue += *doc.TotalValue
		}
		switch doc.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
		if doc.ProcessedAt != nil {
			key := DateKey(*doc.ProcessedAt, loc)
			if key == todayKey {
				stats.ProcessedToday++
			}
			if i, ok := index[key]; ok {
				stats.DailyProcessing[i].Count++
			}
		}
	}
	stats.SuccessRate = SuccessRate(completed, failed)
	return stats
}

// BuildProcessingQueue lists documents that are currently processing.
func BuildProcessingQueue(docs []Document) []QueueItem {
	items := make([]QueueItem, 0)
	for _, doc := range docs {
		if doc.Status != StatusProcessing {
			continue
		}
		items = append(items, QueueItem{
			ID:       doc.ID,
			Filename: doc.OriginalName,
			Status:   doc.Status,
			Stage:    doc.Stage,
			Progress: doc.Progress(),
			Type:     FileKind(doc.MimeType),
		})
	}
	return items
}

func SuccessRate(completed, failed int) float64 {
	if completed+failed == 0 {
		return 0
	}
	return float64(completed) / float64(completed+failed)
}
