package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func (rt *Router) dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.Analytics.Dashboard(r.Context(), UserIDFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) processingQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := rt.svc.Analytics.ProcessingQueue(r.Context(), UserIDFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if queue == nil {
		queue = []domain.QueueItem{}
	}
	writeJSON(w, http.StatusOK, queue)
}

func (rt *Router) reports(w http.ResponseWriter, r *http.Request) {
	report, err := rt.buildReport(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) exportReport(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "report export is not configured"})
		return
	}
	report, err := rt.buildReport(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := rt.svc.Exporter.Export(&buf, report); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rt.svc.Exporter.ContentType())
	w.Header().Set("Content-Disposition", contentDisposition(rt.svc.Exporter.FileName(report)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) buildReport(r *http.Request) (*domain.Report, error) {
	q := r.URL.Query()
	rng, err := parseReportRange(q, rt.cfg.Location())
	if err != nil {
		return nil, err
	}
	reportType := domain.ReportType(strings.ToLower(firstQuery(q, "type", "reportType", "report_type")))
	return rt.svc.Analytics.Report(r.Context(), UserIDFromRequest(r), reportType, rng)
}

// parseReportRange accepts RFC3339 timestamps or plain dates in loc. A plain dateTo covers
// the whole day.
func parseReportRange(q url.Values, loc *time.Location) (domain.ReportRange, error) {
	var rng domain.ReportRange
	if raw := firstQuery(q, "dateFrom", "date_from"); raw != "" {
		from, _, err := parseReportTime(raw, loc)
		if err != nil {
			return rng, domain.WrapError(domain.ErrInvalidInput, "parse report range", fmt.Errorf("dateFrom: %w", err))
		}
		rng.From = &from
	}
	if raw := firstQuery(q, "dateTo", "date_to"); raw != "" {
		to, dateOnly, err := parseReportTime(raw, loc)
		if err != nil {
			return rng, domain.WrapError(domain.ErrInvalidInput, "parse report range", fmt.Errorf("dateTo: %w", err))
		}
		if dateOnly {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		rng.To = &to
	}
	return rng, nil
}

func parseReportTime(raw string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, true, nil
}

func (rt *Router) trends(w http.ResponseWriter, r *http.Request) {
	trends, err := rt.svc.Analytics.Trends(r.Context(), UserIDFromRequest(r), r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (rt *Router) performance(w http.ResponseWriter, r *http.Request) {
	perf, err := rt.svc.Analytics.Performance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}
