package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	maxResponseBytes  = 8 << 20
	maxErrorBodyBytes = 2 << 10
)

type generateResponse struct {
	Response string `json:"response"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// post sends one JSON request to the Ollama API and decodes the reply into T.
// Non-2xx answers become *HTTPStatusError so the classifier can judge them.
func post[T any](ctx context.Context, c *Client, path, operation string, payload any) (T, error) {
	var out T

	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		return out, fmt.Errorf("encode %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return out, fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("ollama %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       errorBody(resp.Body),
		}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return out, nil
}

func errorBody(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	return strings.TrimSpace(string(raw))
}
