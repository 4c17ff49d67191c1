package kunci

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeriveCacheKey(t *testing.T) {
	tests := []struct {
		name string
		opts RequestOptions
		url  string
		want string
	}{
		{"derived", RequestOptions{}, "https://api.test/users?a=1", "GET:https://api.test/users?a=1"},
		{"explicit", RequestOptions{Cache: CacheOptions{Key: "users"}}, "https://api.test/users", "users"},
		{"anonymous", RequestOptions{SkipAuth: true}, "https://api.test/users", "GET:anon:https://api.test/users"},
		{"explicit wins over anonymous", RequestOptions{SkipAuth: true, Cache: CacheOptions{Key: "users"}}, "https://api.test/users", "users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveCacheKey(tt.opts, tt.url); got != tt.want {
				t.Errorf("deriveCacheKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestQueryOrderSharesCacheKey(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	ctx := context.Background()

	client.Get(ctx, "/search", WithQueryParam("b", "2"), WithQueryParam("a", "1"))
	client.Get(ctx, "/search", WithQueryParam("a", "1"), WithQueryParam("b", "2"))
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
}

func TestAnonymousGetDoesNotReuseAuthenticatedCache(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") == "" {
			w.Write([]byte("public"))
			return
		}
		w.Write([]byte("private"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, WithTokenSource(StaticToken("secret")))
	ctx := context.Background()

	authed, err := client.Get(ctx, "/profile")
	if err != nil {
		t.Fatalf("authenticated GET failed: %v", err)
	}
	anon, err := client.Get(ctx, "/profile", SkipAuth())
	if err != nil {
		t.Fatalf("anonymous GET failed: %v", err)
	}

	if authed.Text() != "private" || anon.Text() != "public" {
		t.Errorf("got authed=%q anon=%q", authed.Text(), anon.Text())
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestConcurrentGetsShareOneRequest(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
		}
		<-release
		w.Write([]byte(`shared`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, WithoutCache())
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Response, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = client.Get(ctx, "/inventory")
	}()
	<-entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = client.Get(ctx, "/inventory")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if results[i].Text() != "shared" {
			t.Errorf("caller %d body = %q", i, results[i].Text())
		}
	}
}

func TestConcurrentGetsShareFailure(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
		}
		<-release
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = client.Get(ctx, "/down")
	}()
	<-entered
	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Get(ctx, "/down")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	for i, err := range errs {
		if StatusCode(err) != http.StatusBadGateway {
			t.Errorf("caller %d: expected 502, got %v", i, err)
		}
	}
}

func TestDeduplicationWaiterHonoursOwnContext(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		w.Write([]byte("late"))
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, server.URL)

	go client.Get(context.Background(), "/slow")
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Get(ctx, "/slow")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("waiter should give up on its own deadline, got %v", err)
	}
}

func TestDeduplicationWaiterSharesStarterCancellation(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, server.URL)

	starterCtx, cancel := context.WithCancel(context.Background())
	go client.Get(starterCtx, "/shared")
	<-entered

	result := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), "/shared")
		result <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, ErrNetwork) || !errors.Is(err, context.Canceled) {
			t.Errorf("waiter should share the starter's cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the shared outcome")
	}
}

func TestIsIdempotentRead(t *testing.T) {
	if !isIdempotentRead(http.MethodGet) {
		t.Error("GET should be deduplicated")
	}
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		if isIdempotentRead(m) {
			t.Errorf("%s should not be deduplicated", m)
		}
	}
}
