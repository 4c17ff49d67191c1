package kunci

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// BodyKind describes how a response body was interpreted.
type BodyKind int

const (
	BodyEmpty BodyKind = iota
	BodyJSON
	BodyText
	BodyBinary
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	case BodyBinary:
		return "binary"
	default:
		return "empty"
	}
}

// Response is a fully read HTTP response. Responses served from the cache or
// shared through deduplication are the same value for every caller and must
// be treated as read-only.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Kind       BodyKind
	// Data holds the parsed body: a decoded JSON value, a string for text/*,
	// or the raw bytes otherwise.
	Data     any
	Duration time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newResponse(status int, header http.Header, body []byte, duration time.Duration) *Response {
	data, kind := parseBody(header.Get("Content-Type"), body)
	return &Response{
		StatusCode: status,
		Header:     header,
		Body:       body,
		Kind:       kind,
		Data:       data,
		Duration:   duration,
	}
}

func parseBody(contentType string, body []byte) (any, BodyKind) {
	if len(body) == 0 {
		return nil, BodyEmpty
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return string(body), BodyText
		}
		return v, BodyJSON
	case strings.HasPrefix(mediaType, "text/"):
		return string(body), BodyText
	default:
		return body, BodyBinary
	}
}

// errorMessage pulls a human readable message out of a JSON error envelope,
// falling back to the status text.
func errorMessage(status int, body []byte) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "detail"} {
			if res := gjson.GetBytes(body, path); res.Exists() && res.Type == gjson.String && res.Str != "" {
				return res.Str
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}
