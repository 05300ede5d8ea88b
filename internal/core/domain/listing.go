package domain

import (
	"math"
	"sort"
	"strings"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

const (
	SortUploadedAt  = "uploadedAt"
	SortProcessedAt = "processedAt"
	SortFilename    = "filename"
	SortSize        = "size"
	SortTotalValue  = "totalValue"
)

type ListFilter struct {
	Status       DocumentStatus
	DocumentType string
	Search       string
	Sort         string
	Descending   bool
}

type PageRequest struct {
	Page  int
	Limit int
}

// Normalize applies defaults and bounds to the page request.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset saturates at math.MaxInt for pages too far out to address.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

type DocumentPage struct {
	Items []Document `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Pages int        `json:"pages"`
}

func NewDocumentPage(items []Document, total int, req PageRequest) DocumentPage {
	if items == nil {
		items = []Document{}
	}
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	return DocumentPage{Items: items, Total: total, Page: req.Page, Limit: req.Limit, Pages: pages}
}

func ValidSortKey(key string) bool {
	switch key {
	case SortUploadedAt, SortProcessedAt, SortFilename, SortSize, SortTotalValue:
		return true
	default:
		return false
	}
}

// WithDefaults orders by upload time, newest first, when no sort key was given.
func (f ListFilter) WithDefaults() ListFilter {
	if f.Sort == "" {
		f.Sort = SortUploadedAt
		f.Descending = true
	}
	return f
}

// Matches reports whether doc passes the filter.
func (f ListFilter) Matches(doc Document) bool {
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	if f.DocumentType != "" {
		if doc.DocumentType == nil || *doc.DocumentType != f.DocumentType {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		inName := strings.Contains(strings.ToLower(doc.OriginalName), q)
		inText := doc.OCRText != nil && strings.Contains(strings.ToLower(*doc.OCRText), q)
		if !inName && !inText {
			return false
		}
	}
	return true
}

// SortDocuments orders docs in place by the filter's sort key; ids break ties.
func SortDocuments(docs []Document, f ListFilter) {
	key := f.Sort
	if !ValidSortKey(key) {
		key = SortUploadedAt
	}
	less := func(a, b Document) int {
		switch key {
		case SortFilename:
			return strings.Compare(strings.ToLower(a.OriginalName), strings.ToLower(b.OriginalName))
		case SortSize:
			return compareInt64(a.Size, b.Size)
		case SortTotalValue:
			return compareInt64(valueOrZero(a.TotalValue), valueOrZero(b.TotalValue))
		case SortProcessedAt:
			var at, bt int64
			if a.ProcessedAt != nil {
				at = a.ProcessedAt.UnixNano()
			}
			if b.ProcessedAt != nil {
				bt = b.ProcessedAt.UnixNano()
			}
			return compareInt64(at, bt)
		default:
			return a.UploadedAt.Compare(b.UploadedAt)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := less(docs[i], docs[j])
		if c == 0 {
			c = strings.Compare(docs[i].ID, docs[j].ID)
		}
		if f.Descending {
			return c > 0
		}
		return c < 0
	})
}

// Paginate returns the window of docs selected by req.
func Paginate(docs []Document, req PageRequest) []Document {
	start := req.Offset()
	if start >= len(docs) {
		return []Document{}
	}
	end := start + req.Limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[start:end]
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
