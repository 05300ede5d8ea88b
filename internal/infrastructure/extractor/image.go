package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
)

// NoopOCR is used when no OCR backend is configured; images yield no text.
type NoopOCR struct{}

func (NoopOCR) RecognizeText(context.Context, []byte, string) (string, error) {
	return "", nil
}

func (e *Extractor) recognizeImage(ctx context.Context, path, mediaType string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, e.maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return "", errEmptyFile
	}
	if int64(len(raw)) > e.maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", e.maxImageBytes)
	}

	text, err := e.ocr.RecognizeText(ctx, raw, mediaType)
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return text, nil
}
