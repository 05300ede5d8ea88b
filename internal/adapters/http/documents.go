package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

// multipartOverheadBytes leaves room for boundaries and part headers on top of the file limit.
const multipartOverheadBytes = 64 << 10

type uploadResponse struct {
	ID       string                `json:"id"`
	Filename string                `json:"filename"`
	Status   domain.DocumentStatus `json:"status"`
	Message  string                `json:"message"`
}

type queryRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"documentIds"`
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverheadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("multipart form expected: %w", err)))
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		rt.recordUpload("", 0, err)
		writeError(w, r, err)
		return
	}
	defer part.Close()

	mediaType := resolveMediaType(part.Header.Get("Content-Type"), part.FileName())
	doc, err := rt.svc.Ingestor.Upload(r.Context(), ports.UploadRequest{
		OwnerID:  UserIDFromRequest(r),
		Filename: part.FileName(),
		MimeType: mediaType,
		Body:     part,
	})
	if err != nil {
		rt.recordUpload(mediaType, 0, err)
		writeError(w, r, err)
		return
	}
	rt.recordUpload(doc.MimeType, doc.Size, nil)

	writeJSON(w, http.StatusAccepted, uploadResponse{
		ID:       doc.ID,
		Filename: doc.OriginalName,
		Status:   doc.Status,
		Message:  "Document uploaded successfully and is being processed",
	})
}

// nextFilePart skips form fields until the "file" part.
func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required"))
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, domain.WrapError(domain.ErrPayloadTooLarge, "upload document", err)
			}
			return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("read multipart: %w", err))
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

// resolveMediaType trusts the declared part type unless it is missing or generic.
func resolveMediaType(declared, filename string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(strings.ToLower(declared), "application/octet-stream") {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return declared
}

func (rt *Router) recordUpload(mediaType string, size int64, err error) {
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordUpload(domain.NormalizeMediaType(mediaType), size, err)
	}
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := rt.svc.Documents.List(r.Context(), UserIDFromRequest(r), filter, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseListQuery(q url.Values) (domain.ListFilter, domain.PageRequest, error) {
	var page domain.PageRequest
	var err error
	if page.Page, err = queryInt(q, "page", 1, 1, 0); err != nil {
		return domain.ListFilter{}, page, err
	}
	if page.Limit, err = queryInt(q, "limit", domain.DefaultPageLimit, 1, domain.MaxPageLimit); err != nil {
		return domain.ListFilter{}, page, err
	}

	filter := domain.ListFilter{
		Status:       domain.DocumentStatus(strings.TrimSpace(q.Get("status"))),
		DocumentType: firstQuery(q, "documentType", "document_type"),
		Search:       strings.TrimSpace(q.Get("search")),
		Sort:         strings.TrimSpace(q.Get("sort")),
	}
	switch order := strings.ToLower(strings.TrimSpace(q.Get("order"))); order {
	case "", "desc":
		filter.Descending = true
	case "asc":
	default:
		return domain.ListFilter{}, page, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("order must be asc or desc, got %q", order))
	}
	return filter, page, nil
}

// queryInt parses an optional integer parameter; max 0 means unbounded.
func queryInt(q url.Values, key string, fallback, minValue, maxValue int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minValue || (maxValue > 0 && n > maxValue) {
		bound := fmt.Sprintf(">= %d", minValue)
		if maxValue > 0 {
			bound = fmt.Sprintf("between %d and %d", minValue, maxValue)
		}
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse query", fmt.Errorf("%s must be an integer %s, got %q", key, bound, raw))
	}
	return n, nil
}

func firstQuery(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Documents.Get(r.Context(), UserIDFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Documents.Delete(r.Context(), UserIDFromRequest(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Document deleted successfully"})
}

func (rt *Router) downloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, body, err := rt.svc.Documents.OpenFile(r.Context(), UserIDFromRequest(r), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(doc.OriginalName))
	if doc.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("document_download_interrupted",
			"request_id", requestIDFromContext(r.Context()),
			"document_id", doc.ID,
			"error", err,
		)
	}
}

func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func (rt *Router) queryDocuments(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	answer, err := rt.svc.Query.Answer(r.Context(), UserIDFromRequest(r), req.Query, req.DocumentIDs)
	if rt.svc.Metrics != nil {
		n := 0
		if answer != nil {
			n = answer.ContextDocuments
		}
		rt.svc.Metrics.RecordQuery(n, err)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("document_query_answered",
		"request_id", requestIDFromContext(r.Context()),
		"context_documents", answer.ContextDocuments,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, answer)
}
