package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("chat session %w", ErrNotFound)

	ErrInvalidInput         = errors.New("invalid input")
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrInvalidInput)
	ErrPayloadTooLarge      = fmt.Errorf("%w: payload too large", ErrInvalidInput)

	ErrExtraction        = errors.New("extraction failed")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrTransport         = errors.New("transport error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
