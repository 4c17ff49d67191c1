package kunci

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditLevel controls how much of each call is recorded.
type AuditLevel string

const (
	// AuditMinimal records method, endpoint, status and duration.
	AuditMinimal AuditLevel = "minimal"
	// AuditStandard adds sizes, request id and user id.
	AuditStandard AuditLevel = "standard"
	// AuditDetailed adds request and response headers.
	AuditDetailed AuditLevel = "detailed"
	// AuditFull adds request and response bodies.
	AuditFull AuditLevel = "full"
)

func (l AuditLevel) rank() int {
	switch l {
	case AuditMinimal:
		return 0
	case AuditDetailed:
		return 2
	case AuditFull:
		return 3
	default:
		return 1
	}
}

// UnmarshalText accepts the level names case-insensitively.
func (l *AuditLevel) UnmarshalText(text []byte) error {
	switch lvl := AuditLevel(strings.ToLower(strings.TrimSpace(string(text)))); lvl {
	case AuditMinimal, AuditStandard, AuditDetailed, AuditFull:
		*l = lvl
		return nil
	case "":
		*l = AuditStandard
		return nil
	default:
		return fmt.Errorf("unknown audit level %q", string(text))
	}
}

// Audit event names.
const (
	AuditEventRequest     = "api_request"
	AuditEventAuthFailure = "auth_failure"
	AuditEventError       = "api_error"
)

// AuditEntry is one structured audit record.
type AuditEntry struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	Event           string            `json:"event"`
	Resource        string            `json:"resource,omitempty"`
	Level           AuditLevel        `json:"level"`
	Method          string            `json:"method,omitempty"`
	Endpoint        string            `json:"endpoint,omitempty"`
	StatusCode      int               `json:"statusCode,omitempty"`
	DurationMS      int64             `json:"durationMs"`
	RequestID       string            `json:"requestId,omitempty"`
	UserID          string            `json:"userId,omitempty"`
	RequestSize     int               `json:"requestSize,omitempty"`
	ResponseSize    int               `json:"responseSize,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	RequestBody     string            `json:"requestBody,omitempty"`
	ResponseBody    string            `json:"responseBody,omitempty"`
	Error           string            `json:"error,omitempty"`
	Details         map[string]any    `json:"details,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
}

// Auditor receives audit events. The client calls it off the request path
// and only logs returned errors.
type Auditor interface {
	Audit(ctx context.Context, event, resource string, entry AuditEntry) error
	Error(ctx context.Context, message string, details map[string]any, tags ...string) error
}

// AuditConfig configures request auditing.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	Level           AuditLevel    `yaml:"level" env:"LEVEL"`
	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
	BatchInterval   time.Duration `yaml:"batch_interval" env:"BATCH_INTERVAL"`
	MaxResponseSize int           `yaml:"max_response_size" env:"MAX_RESPONSE_SIZE"`
	MaxMaskingSize  int           `yaml:"max_masking_size" env:"MAX_MASKING_SIZE"`
	SkipEndpoints   []string      `yaml:"skip_endpoints" env:"SKIP_ENDPOINTS" envSeparator:","`
	// Endpoint is the batch delivery path, relative to the client base URL.
	Endpoint    string        `yaml:"endpoint" env:"ENDPOINT"`
	MaxFailures int           `yaml:"max_failures" env:"MAX_FAILURES"`
	Cooldown    time.Duration `yaml:"cooldown" env:"COOLDOWN"`
}

// DefaultAuditConfig returns auditing disabled with standard settings.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:         false,
		Level:           AuditStandard,
		BatchSize:       50,
		BatchInterval:   5 * time.Second,
		MaxResponseSize: 10 * 1024,
		MaxMaskingSize:  100 * 1024,
		Endpoint:        "/logs/batch",
		MaxFailures:     DefaultAuditMaxFailures,
		Cooldown:        DefaultAuditCooldown,
	}
}

func (cfg AuditConfig) skips(endpoint string) bool {
	for _, prefix := range cfg.SkipEndpoints {
		if prefix != "" && strings.HasPrefix(endpoint, prefix) {
			return true
		}
	}
	return false
}

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"Set-Cookie":    true,
	"X-Api-Key":     true,
}

func flattenHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if redactedHeaders[http.CanonicalHeaderKey(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// auditBody renders a body for a full-level entry. Bodies of maxMasking bytes
// or more are replaced by a size marker; the rest is truncated to limit bytes.
func auditBody(body []byte, limit, maxMasking int) string {
	if len(body) == 0 {
		return ""
	}
	if maxMasking > 0 && len(body) >= maxMasking {
		return fmt.Sprintf("[omitted %d bytes]", len(body))
	}
	if limit > 0 && len(body) > limit {
		return string(body[:limit]) + "...[truncated]"
	}
	return string(body)
}

// auditRecord is what the executor knows about a finished attempt.
type auditRecord struct {
	event     string
	call      *call
	status    int
	duration  time.Duration
	requestID string
	token     string
	header    http.Header
	body      []byte
	err       error
}

func (c *Client) buildAuditEntry(rec auditRecord) AuditEntry {
	cfg := c.audit
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Event:      rec.event,
		Resource:   rec.call.endpoint,
		Level:      cfg.Level,
		Method:     rec.call.method,
		Endpoint:   rec.call.endpoint,
		StatusCode: rec.status,
		DurationMS: rec.duration.Milliseconds(),
	}
	if rec.err != nil {
		entry.Error = rec.err.Error()
	}

	rank := cfg.Level.rank()
	if rank >= AuditStandard.rank() {
		entry.RequestID = rec.requestID
		entry.UserID = c.userID(rec.token)
		entry.RequestSize = len(rec.call.body)
		entry.ResponseSize = len(rec.body)
	}
	if rank >= AuditDetailed.rank() {
		entry.RequestHeaders = flattenHeaders(rec.call.header)
		entry.ResponseHeaders = flattenHeaders(rec.header)
	}
	if rank >= AuditFull.rank() {
		entry.RequestBody = auditBody(rec.call.body, cfg.MaxResponseSize, cfg.MaxMaskingSize)
		entry.ResponseBody = auditBody(rec.body, cfg.MaxResponseSize, cfg.MaxMaskingSize)
	}
	return entry
}

const auditCallTimeout = 10 * time.Second

// auditAsync hands an entry to the auditor without waiting for it.
func (c *Client) auditAsync(rec auditRecord) {
	if c.auditor == nil || rec.call.opts.SkipAudit || c.audit.skips(rec.call.endpoint) {
		return
	}
	entry := c.buildAuditEntry(rec)
	c.detach("audit", func(ctx context.Context) error {
		return c.auditor.Audit(ctx, entry.Event, entry.Resource, entry)
	})
}

// reportErrorAsync sends a terminal failure to the auditor's error channel.
func (c *Client) reportErrorAsync(call *call, err error, requestID string) {
	if c.auditor == nil || call.opts.SkipAudit || c.audit.skips(call.endpoint) {
		return
	}
	details := map[string]any{
		"method":    call.method,
		"endpoint":  call.endpoint,
		"requestId": requestID,
	}
	if status := StatusCode(err); status > 0 {
		details["statusCode"] = status
	}
	message := err.Error()
	c.detach("audit error", func(ctx context.Context) error {
		return c.auditor.Error(ctx, message, details, "http", strings.ToLower(call.method))
	})
}

// detach runs fn in the background. Close waits for detached work; failures
// and panics are logged and never reach the caller.
func (c *Client) detach(what string, fn func(ctx context.Context) error) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer func() {
			if r := recover(); r != nil {
				c.warn("Background task panicked", "task", what, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), auditCallTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.warn("Background task failed", "task", what, "error", err)
		} else if c.debugEnabled(c.debug.LogAudit) {
			c.logger.Debug("Background task done", "task", what)
		}
	}()
}
