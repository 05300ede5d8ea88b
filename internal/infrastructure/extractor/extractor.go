package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

const defaultMaxImageBytes = 20 << 20

// Extractor dispatches files to the PDF reader or the OCR backend by media type.
type Extractor struct {
	ocr           ports.ImageOCR
	maxImageBytes int64
}

type Option func(*Extractor)

func WithMaxImageBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxImageBytes = n
		}
	}
}

// New builds an extractor. A nil ocr yields empty text for images.
func New(ocr ports.ImageOCR, opts ...Option) *Extractor {
	if ocr == nil {
		ocr = NoopOCR{}
	}
	e := &Extractor{ocr: ocr, maxImageBytes: defaultMaxImageBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Extract(ctx context.Context, filePath, mediaType string) (domain.Extraction, error) {
	mediaType = domain.NormalizeMediaType(mediaType)

	var (
		text string
		err  error
	)
	switch mediaType {
	case "application/pdf":
		text, err = runBounded(ctx, func() (string, error) { return readPDFText(filePath) })
	case "image/jpeg", "image/png":
		text, err = e.recognizeImage(ctx, filePath, mediaType)
	default:
		return domain.Extraction{}, domain.WrapError(domain.ErrUnsupportedMediaType, "extract text", fmt.Errorf("media type %q", mediaType))
	}
	if err != nil {
		if domain.IsKind(err, domain.ErrExtraction) {
			return domain.Extraction{}, err
		}
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract text", err)
	}

	text = strings.TrimSpace(text)
	return domain.Extraction{
		Text:            text,
		ProvisionalType: GuessDocumentType(text),
	}, nil
}

// runBounded returns when fn finishes or ctx expires, whichever comes first. The
// PDF parser cannot observe ctx, so an expired run is abandoned in its goroutine.
func runBounded(ctx context.Context, fn func() (string, error)) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("parser panic: %v", r)}
			}
		}()
		text, err := fn()
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", domain.WrapError(domain.ErrExtraction, "extract text", ctx.Err())
	case res := <-done:
		return res.text, res.err
	}
}

var errEmptyFile = errors.New("file is empty")
