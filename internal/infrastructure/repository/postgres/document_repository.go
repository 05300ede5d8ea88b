package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type DocumentRepository struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB, loc *time.Location) *DocumentRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &DocumentRepository{db: db, loc: loc, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the documents and chat tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026031801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	status TEXT NOT NULL,
	stage TEXT NOT NULL DEFAULT '',
	document_type TEXT,
	extracted_data JSONB,
	ocr_text TEXT,
	total_value BIGINT
);

CREATE INDEX IF NOT EXISTS idx_documents_owner_uploaded ON documents(owner_id, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents(processed_at DESC);

CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	is_from_user BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	document_context JSONB
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const documentColumns = `id, owner_id, filename, original_name, mime_type, size_bytes, uploaded_at, processed_at, status, stage, document_type, extracted_data, ocr_text, total_value`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc          domain.Document
		processedAt  sql.NullTime
		status       string
		stage        string
		documentType sql.NullString
		extracted    []byte
		ocrText      sql.NullString
		totalValue   sql.NullInt64
	)
	if err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Filename, &doc.OriginalName, &doc.MimeType, &doc.Size, &doc.UploadedAt,
		&processedAt, &status, &stage, &documentType, &extracted, &ocrText, &totalValue,
	); err != nil {
		return nil, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.Stage = domain.ProcessingStage(stage)
	if processedAt.Valid {
		t := processedAt.Time.UTC()
		doc.ProcessedAt = &t
	}
	if documentType.Valid {
		v := documentType.String
		doc.DocumentType = &v
	}
	if len(extracted) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(extracted, &analysis); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
		doc.ExtractedData = &analysis
	}
	if ocrText.Valid {
		v := ocrText.String
		doc.OCRText = &v
	}
	if totalValue.Valid {
		v := totalValue.Int64
		doc.TotalValue = &v
	}
	return &doc, nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create document", errors.New("document id is required"))
	}
	if doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("new documents must be pending, got %q", doc.Status))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (id, owner_id, filename, original_name, mime_type, size_bytes, uploaded_at, status, stage)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'')
`,
		doc.ID, doc.OwnerID, doc.Filename, doc.OriginalName, doc.MimeType, doc.Size, doc.UploadedAt.UTC(), string(doc.Status),
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) ([]domain.Document, int, error) {
	page = page.Normalize()
	filter = filter.WithDefaults()

	where, args := listConditions(ownerID, filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	if page.Offset() >= total {
		return []domain.Document{}, total, nil
	}

	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM documents WHERE %s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		documentColumns, where, sortColumn(filter.Sort), direction, direction, len(args)-1, len(args))

	docs, err := r.queryDocuments(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func listConditions(ownerID string, filter domain.ListFilter) (string, []any) {
	conditions := []string{"owner_id = $1"}
	args := []any{ownerID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.DocumentType != "" {
		args = append(args, filter.DocumentType)
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Search); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conditions = append(conditions, fmt.Sprintf("(original_name ILIKE $%d OR ocr_text ILIKE $%d)", len(args), len(args)))
	}
	return strings.Join(conditions, " AND "), args
}

func sortColumn(key string) string {
	switch key {
	case domain.SortFilename:
		return "lower(original_name)"
	case domain.SortSize:
		return "size_bytes"
	case domain.SortTotalValue:
		return "COALESCE(total_value, 0)"
	case domain.SortProcessedAt:
		// unprocessed rows rank as the zero time, same as the memory store
		return "COALESCE(processed_at, 'epoch'::timestamptz)"
	default:
		return "uploaded_at"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Update locks the row, applies the patch with the shared transition rules and writes it back.
func (r *DocumentRepository) Update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanDocument(tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("lock document: %w", err)
	}

	next, err := domain.ApplyPatch(*current, patch, r.now())
	if err != nil {
		return nil, err
	}

	var extracted []byte
	if next.ExtractedData != nil {
		extracted, err = json.Marshal(next.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET processed_at = $2, status = $3, stage = $4, document_type = $5, extracted_data = $6, ocr_text = $7, total_value = $8
WHERE id = $1
`, id, nullTime(next.ProcessedAt), string(next.Status), string(next.Stage), nullString(next.DocumentType), extracted,
		nullString(next.OCRText), nullInt64(next.TotalValue)); err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update tx: %w", err)
	}
	return &next, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Document, error) {
	if limit > 0 {
		return r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY uploaded_at DESC, id DESC LIMIT $2`, ownerID, limit)
	}
	return r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY uploaded_at DESC, id DESC`, ownerID)
}

func (r *DocumentRepository) RecentlyCompleted(ctx context.Context, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE status = $1 AND processed_at IS NOT NULL ORDER BY processed_at DESC LIMIT $2`,
		string(domain.StatusCompleted), limit)
}

func (r *DocumentRepository) ListUnfinished(ctx context.Context) ([]domain.Document, error) {
	return r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE status IN ($1, $2) ORDER BY uploaded_at ASC, id ASC`,
		string(domain.StatusPending), string(domain.StatusProcessing))
}

func (r *DocumentRepository) Stats(ctx context.Context, ownerID string, now time.Time) (domain.DocumentStats, error) {
	docs, err := r.ListByOwner(ctx, ownerID, 0)
	if err != nil {
		return domain.DocumentStats{}, err
	}
	return domain.BuildStats(docs, now, r.loc), nil
}

func (r *DocumentRepository) ProcessingQueue(ctx context.Context, ownerID string) ([]domain.QueueItem, error) {
	docs, err := r.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 AND status = $2 ORDER BY uploaded_at ASC`,
		ownerID, string(domain.StatusProcessing))
	if err != nil {
		return nil, err
	}
	return domain.BuildProcessingQueue(docs), nil
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
