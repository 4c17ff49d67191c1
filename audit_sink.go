package kunci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPBatchSink posts audit batches as {"logs": [...]} to the control plane.
// It uses its own http.Client so audit delivery never re-enters the
// client's retry and audit pipeline.
type HTTPBatchSink struct {
	url        string
	httpClient *http.Client
	tokens     TokenSource
}

// NewHTTPBatchSink creates a sink posting to baseURL+path.
func NewHTTPBatchSink(baseURL, path string, httpClient *http.Client, tokens TokenSource) *HTTPBatchSink {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if path == "" {
		path = "/logs/batch"
	}
	return &HTTPBatchSink{
		url:        joinURL(baseURL, path),
		httpClient: httpClient,
		tokens:     tokens,
	}
}

type batchPayload struct {
	Logs []AuditEntry `json:"logs"`
}

// Send implements BatchSink.
func (s *HTTPBatchSink) Send(ctx context.Context, entries []AuditEntry) error {
	body, err := json.Marshal(batchPayload{Logs: entries})
	if err != nil {
		return fmt.Errorf("encode audit batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.tokens != nil {
		if token := s.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post audit batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post audit batch: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
