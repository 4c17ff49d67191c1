package kunci

import (
	"net/http"
	"testing"
)

func TestParseBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		kind        BodyKind
	}{
		{"json", "application/json", `{"id":1}`, BodyJSON},
		{"json with charset", "application/json; charset=utf-8", `[1,2]`, BodyJSON},
		{"problem json", "application/problem+json", `{"title":"x"}`, BodyJSON},
		{"invalid json", "application/json", `not json`, BodyText},
		{"text", "text/plain", "hello", BodyText},
		{"html", "text/html; charset=utf-8", "<p>hi</p>", BodyText},
		{"binary", "application/octet-stream", "\x00\x01", BodyBinary},
		{"no content type", "", "raw", BodyBinary},
		{"empty", "application/json", "", BodyEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind := parseBody(tt.contentType, []byte(tt.body))
			if kind != tt.kind {
				t.Errorf("parseBody(%q) kind = %v, want %v", tt.contentType, kind, tt.kind)
			}
		})
	}
}

func TestNewResponseData(t *testing.T) {
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp := newResponse(200, header, []byte(`{"name":"alice"}`), 0)

	obj, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data, got %T", resp.Data)
	}
	if obj["name"] != "alice" {
		t.Errorf("expected name alice, got %v", obj["name"])
	}
	if !resp.OK() {
		t.Error("200 should be OK")
	}

	var out struct{ Name string }
	if err := resp.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Name != "alice" {
		t.Errorf("expected decoded name alice, got %q", out.Name)
	}

	text := newResponse(200, http.Header{"Content-Type": []string{"text/plain"}}, []byte("pong"), 0)
	if text.Data != "pong" || text.Text() != "pong" {
		t.Errorf("expected text data pong, got %v", text.Data)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{400, `{"message":"bad field"}`, "bad field"},
		{404, `{"error":{"message":"nested"}}`, "nested"},
		{409, `{"error":"conflict here"}`, "conflict here"},
		{422, `{"detail":"unprocessable"}`, "unprocessable"},
		{400, `{"message":42}`, "Bad Request"},
		{404, `plain text`, "Not Found"},
		{599, ``, "unexpected status 599"},
	}

	for _, tt := range tests {
		if got := errorMessage(tt.status, []byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%d, %s) = %q, want %q", tt.status, tt.body, got, tt.want)
		}
	}
}
