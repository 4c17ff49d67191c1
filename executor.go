package kunci

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout is the per-attempt timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries the per-call request id.
const RequestIDHeader = "X-Request-ID"

// maxAuthBodySize bounds how much of a 401/403 body is read for its message.
const maxAuthBodySize = 64 * 1024

// call is one logical request after options and interceptors are applied.
type call struct {
	method     string
	endpoint   string
	url        string
	header     http.Header
	body       []byte
	opts       RequestOptions
	maxRetries int

	cacheKey  string
	cacheable bool
	cacheTTL  time.Duration
}

// retryState lives for one execute invocation.
type retryState struct {
	attempt               int
	authErrorDetected     bool
	tokenRefreshAttempted bool
	refreshedToken        string
}

// execute runs call to completion and records its outcome exactly once.
func (c *Client) execute(ctx context.Context, call *call) (*Response, error) {
	requestID := c.newRequestID()

	ctx, span := c.tracer.Start(ctx, "kunci "+call.method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", call.method),
			attribute.String("url.full", call.url),
			attribute.String("kunci.endpoint", call.endpoint),
			attribute.String("kunci.request_id", requestID),
		),
	)
	defer span.End()

	c.metrics.RecordRequestStart(call.method, call.endpoint)
	defer c.metrics.RecordRequestEnd(call.method, call.endpoint)

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "method", call.method, "url", call.url)
	}

	start := time.Now()
	state := &retryState{}
	resp, err := c.run(ctx, call, state, requestID)
	duration := time.Since(start)

	status := StatusCode(err)
	if resp != nil {
		status = resp.StatusCode
	}
	c.stats.recordRequest(duration, err != nil)
	c.metrics.RecordRequest(call.method, call.endpoint, status, duration)
	span.SetAttributes(attribute.Int("kunci.attempts", state.attempt+1))
	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}

	if err == nil {
		if c.debugEnabled(c.debug.LogRequests) {
			c.logger.Debug("Request completed", "requestID", requestID, "status", status, "duration", duration, "attempts", state.attempt+1)
		}
		return resp, nil
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		clientErr.Duration = duration
		c.metrics.RecordError(clientErr.Type, call.method, call.endpoint)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Error("Request failed", "requestID", requestID, "method", call.method, "url", call.url, "error", err)
	}

	if !IsAuthError(err) && c.errorInterceptor != nil {
		if intercepted := c.errorInterceptor(ctx, err); intercepted != nil {
			err = intercepted
		}
	}
	return nil, err
}

// run is the attempt loop. The auth guard at the top of each iteration
// ensures nothing is sent once a 401/403 was seen.
func (c *Client) run(ctx context.Context, call *call, state *retryState, requestID string) (*Response, error) {
	for {
		if state.authErrorDetected {
			return nil, c.newError(ErrorTypeAuthentication, "authentication failed", nil, call, requestID, state.attempt)
		}

		resp, refreshed, err := c.attempt(ctx, call, state, requestID)
		if refreshed {
			// the refresh retry does not count against maxRetries
			state.attempt++
			continue
		}
		if err == nil {
			return resp, nil
		}
		if IsAuthError(err) {
			return nil, err
		}

		if !c.shouldRetry(ctx, err, state.attempt, call.maxRetries) {
			c.reportErrorAsync(call, err, requestID)
			return nil, err
		}

		delay := c.backoffDelay(state.attempt, err)
		c.metrics.RecordRetry(call.method, call.endpoint, state.attempt+1)
		if c.debugEnabled(c.debug.LogRetries) {
			c.logger.Warn("Retrying request", "requestID", requestID, "attempt", state.attempt+1, "maxRetries", call.maxRetries, "delay", delay, "error", err)
		}

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			cancelErr := c.contextError(ctx, call, requestID, state.attempt)
			c.reportErrorAsync(call, cancelErr, requestID)
			return nil, cancelErr
		}
		state.attempt++
	}
}

// attempt sends one request. refreshed reports that the token was refreshed
// after a 401 and the request should be sent again straight away.
func (c *Client) attempt(ctx context.Context, call *call, state *retryState, requestID string) (resp *Response, refreshed bool, err error) {
	if err := c.waitRateLimit(ctx, call, requestID); err != nil {
		if ctx.Err() != nil {
			return nil, false, c.contextError(ctx, call, requestID, state.attempt)
		}
		return nil, false, c.newError(ErrorTypeTimeout, "rate limit wait exceeds request deadline", err, call, requestID, state.attempt)
	}

	timeout := call.opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var token string
	if !call.opts.SkipAuth {
		token = c.currentToken(attemptCtx, state)
	}

	req, err := c.buildRequest(attemptCtx, call, token, requestID)
	if err != nil {
		return nil, false, c.newError(ErrorTypeConfiguration, "failed to build request", err, call, requestID, state.attempt)
	}

	started := time.Now()
	httpResp, err := c.executeMiddleware(req)
	if err != nil {
		return nil, false, c.transportError(ctx, attemptCtx, err, timeout, call, requestID, state.attempt)
	}
	defer httpResp.Body.Close()

	status := httpResp.StatusCode

	if status == http.StatusUnauthorized && c.onTokenRefresh != nil && state.attempt == 0 && !state.tokenRefreshAttempted {
		state.tokenRefreshAttempted = true
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxAuthBodySize))
		if newToken, ok := c.refreshToken(ctx, requestID); ok {
			state.refreshedToken = newToken
			return nil, true, nil
		}
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxAuthBodySize))
		state.authErrorDetected = true

		authErr := c.newError(errorTypeForStatus(status), errorMessage(status, body), nil, call, requestID, state.attempt)
		authErr.StatusCode = status
		c.metrics.RecordAuthFailure(status)
		if c.onAuthError != nil {
			c.onAuthError(authErr)
		}
		c.auditAsync(auditRecord{
			event:     AuditEventAuthFailure,
			call:      call,
			status:    status,
			duration:  time.Since(started),
			requestID: requestID,
			token:     token,
			header:    httpResp.Header,
			body:      body,
			err:       authErr,
		})
		return nil, false, authErr
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, c.transportError(ctx, attemptCtx, err, timeout, call, requestID, state.attempt)
	}
	duration := time.Since(started)
	resp = newResponse(status, httpResp.Header, body, duration)

	if call.cacheable && resp.OK() {
		c.cache.Set(call.cacheKey, resp, call.cacheTTL, c.cacheMaxSize)
		if c.metrics != nil {
			c.metrics.RecordCacheSize(c.cache.Len())
		}
		if c.debugEnabled(c.debug.LogCache) {
			c.logger.Debug("Response cached", "requestID", requestID, "key", call.cacheKey, "ttl", call.cacheTTL)
		}
	}

	if c.responseInterceptor != nil {
		out, err := c.responseInterceptor(ctx, resp)
		return out, false, err
	}

	rec := auditRecord{
		event:     AuditEventRequest,
		call:      call,
		status:    status,
		duration:  duration,
		requestID: requestID,
		token:     token,
		header:    httpResp.Header,
		body:      body,
	}

	if !resp.OK() {
		apiErr := c.newError(ErrorTypeAPI, errorMessage(status, body), nil, call, requestID, state.attempt)
		apiErr.StatusCode = status
		apiErr.retryAfter = parseRetryAfter(httpResp.Header.Get("Retry-After"))
		rec.err = apiErr
		c.auditAsync(rec)
		return nil, false, apiErr
	}

	c.auditAsync(rec)
	return resp, false, nil
}

func (c *Client) buildRequest(ctx context.Context, call *call, token, requestID string) (*http.Request, error) {
	var body io.Reader
	if call.body != nil {
		body = bytes.NewReader(call.body)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, body)
	if err != nil {
		return nil, err
	}
	req.Header = call.header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID != "" && req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, requestID)
	}
	return req, nil
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// transportError classifies a failure where no usable response arrived.
func (c *Client) transportError(ctx, attemptCtx context.Context, cause error, timeout time.Duration, call *call, requestID string, attempt int) *ClientError {
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return c.newError(ErrorTypeTimeout, fmt.Sprintf("Request timeout after %dms", timeout.Milliseconds()), cause, call, requestID, attempt)
	}
	if ctx.Err() != nil {
		return c.contextError(ctx, call, requestID, attempt)
	}

	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		return c.newError(ErrorTypeTimeout, "request timed out", cause, call, requestID, attempt)
	}
	return c.newError(ErrorTypeNetwork, "network request failed", cause, call, requestID, attempt)
}

// contextError maps a done caller context: an expired deadline is a timeout,
// anything else a cancellation-flavoured network error.
func (c *Client) contextError(ctx context.Context, call *call, requestID string, attempt int) *ClientError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return c.newError(ErrorTypeTimeout, "request deadline exceeded", ctx.Err(), call, requestID, attempt)
	}
	return c.newError(ErrorTypeNetwork, "request cancelled", ctx.Err(), call, requestID, attempt)
}

func (c *Client) newError(errorType, message string, cause error, call *call, requestID string, attempt int) *ClientError {
	return &ClientError{
		Type:       errorType,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     call.method,
		URL:        call.url,
		Endpoint:   call.endpoint,
		Attempt:    attempt + 1,
		MaxRetries: call.maxRetries,
		Timestamp:  time.Now(),
	}
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return generateRequestID()
}
