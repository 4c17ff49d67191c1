package kunci

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestUser represents a test user struct for unmarshaling
type TestUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func TestGetJSON(t *testing.T) {
	expectedUser := TestUser{
		ID:    123,
		Name:  "John Doe",
		Email: "john@example.com",
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(expectedUser); err != nil {
			t.Errorf("Failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	var user TestUser
	if err := client.GetJSON(context.Background(), "/users/123", &user); err != nil {
		t.Fatalf("GetJSON() returned error: %v", err)
	}

	if user != expectedUser {
		t.Errorf("Expected %+v, got %+v", expectedUser, user)
	}
}

func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var in TestUser
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = 7
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(in)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	var created TestUser
	err := client.PostJSON(context.Background(), "/users", TestUser{Name: "Jane"}, &created)
	if err != nil {
		t.Fatalf("PostJSON() returned error: %v", err)
	}
	if created.ID != 7 || created.Name != "Jane" {
		t.Errorf("unexpected user %+v", created)
	}
}

func TestPutAndPatchJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in TestUser
		json.NewDecoder(r.Body).Decode(&in)
		in.ID = 1
		in.Name = r.Method
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(in)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	ctx := context.Background()

	var put, patch TestUser
	if err := client.PutJSON(ctx, "/users/1", TestUser{Email: "a@b.c"}, &put); err != nil {
		t.Fatalf("PutJSON() returned error: %v", err)
	}
	if err := client.PatchJSON(ctx, "/users/1", TestUser{Email: "d@e.f"}, &patch); err != nil {
		t.Fatalf("PatchJSON() returned error: %v", err)
	}
	if put.Name != "PUT" || put.Email != "a@b.c" {
		t.Errorf("put = %+v", put)
	}
	if patch.Name != "PATCH" || patch.Email != "d@e.f" {
		t.Errorf("patch = %+v", patch)
	}
}

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TestUser{ID: 555, Name: "Carol Brown"})
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	var user TestUser
	if err := client.DoJSON(context.Background(), http.MethodGet, "/users/555", nil, &user); err != nil {
		t.Fatalf("DoJSON() returned error: %v", err)
	}
	if user.ID != 555 {
		t.Errorf("Expected ID 555, got %d", user.ID)
	}
}

func TestJSONErrorHandling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Invalid request"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	var user TestUser
	err := client.GetJSON(context.Background(), "/users", &user)

	if !errors.Is(err, ErrAPI) {
		t.Fatalf("Expected API error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid request") {
		t.Errorf("Expected error to carry the body message, got: %s", err.Error())
	}
}

func TestJSONInvalidJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{invalid json`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	var user TestUser
	err := client.GetJSON(context.Background(), "/users", &user)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Message != "failed to decode response body" {
		t.Fatalf("Expected decode error, got %v", err)
	}
	if clientErr.StatusCode != http.StatusOK {
		t.Errorf("status = %d", clientErr.StatusCode)
	}
}

func TestJSONEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	user := TestUser{ID: 9}
	if err := client.DoJSON(context.Background(), http.MethodDelete, "/users/9", nil, &user); err != nil {
		t.Fatalf("empty body should not fail: %v", err)
	}
	if user.ID != 9 {
		t.Error("empty body should leave the target untouched")
	}
}

func TestPostJSONWithNilOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	if err := client.PostJSON(context.Background(), "/events", map[string]string{"k": "v"}, nil); err != nil {
		t.Fatalf("nil out should skip decoding: %v", err)
	}
}
