package kunci

import (
	"context"
	"net/http"
)

// GetJSON performs a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodGet, endpoint, nil, out, opts...)
}

// PostJSON performs a POST with a JSON body and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodPost, endpoint, body, out, opts...)
}

// PutJSON performs a PUT with a JSON body and decodes the JSON response into out.
func (c *Client) PutJSON(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodPut, endpoint, body, out, opts...)
}

// PatchJSON performs a PATCH with a JSON body and decodes the JSON response into out.
func (c *Client) PatchJSON(ctx context.Context, endpoint string, body, out any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodPatch, endpoint, body, out, opts...)
}

// DoJSON sends a request and decodes the JSON response into out. A nil out
// or an empty response body leaves out untouched.
func (c *Client) DoJSON(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	resp, err := c.Do(ctx, method, endpoint, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return &ClientError{
			Type:       ErrorTypeAPI,
			Message:    "failed to decode response body",
			Cause:      err,
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}
