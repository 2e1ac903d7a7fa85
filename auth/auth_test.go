package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"token123","token_type":"bearer","expires_in":3600}`))
	}))
}

func TestGetTokenAndSetAuthHeader(t *testing.T) {
	var calls int32
	server := tokenServer(t, &calls)
	defer server.Close()

	client := NewClientCred(Conf{ClientID: "id", ClientSecret: "secret", AuthURL: server.URL})

	token, err := client.GetToken(context.Background())
	if err != nil {
		t.Fatalf("GetToken returned error: %v", err)
	}
	if token != "token123" {
		t.Fatalf("unexpected token %s", token)
	}

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	if err := client.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader returned error: %v", err)
	}
	if auth := req.Header.Get("Authorization"); auth != "Bearer token123" {
		t.Fatalf("unexpected Authorization header %q", auth)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected cached token, endpoint called %d times", n)
	}
	if _, err := client.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected refresh to hit the endpoint, got %d calls", n)
	}
}

func TestStaticToken(t *testing.T) {
	req, _ := http.NewRequest("GET", "http://example.com", nil)
	a := New(Conf{Token: "abc"})
	if err := a.SetAuthHeader(req); err != nil {
		t.Fatalf("SetAuthHeader: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Token abc" {
		t.Fatalf("unexpected header %q", got)
	}
}

func TestNewWithoutCredentials(t *testing.T) {
	if a := New(Conf{}); a != nil {
		t.Fatalf("expected nil authorizer, got %T", a)
	}
	if _, ok := New(Conf{ClientID: "id", AuthURL: "http://x"}).(*ClientCred); !ok {
		t.Fatalf("expected client credentials authorizer")
	}
}
