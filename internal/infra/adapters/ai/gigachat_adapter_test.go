package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/adapter"
)

func testServer(t *testing.T, oauthCalls *int32, chatHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(oauthCalls, 1)
		if r.Header.Get("RqUID") == "" {
			t.Error("oauth request missing RqUID")
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			t.Error("oauth request missing Basic authorization")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_at":   time.Now().Add(30 * time.Minute).UnixMilli(),
		})
	})
	mux.HandleFunc("/chat/completions", chatHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(t *testing.T, srv *httptest.Server) *GigaChatAdapter {
	t.Helper()
	g, err := NewGigaChatAdapter(config.GeneratorConfig{
		AuthKey: "c2VjcmV0",
		AuthURL: srv.URL + "/oauth",
		Scope:   "GIGACHAT_API_PERS",
		BaseURL: srv.URL,
		Model:   "GigaChat-Pro",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return g
}

func chatReply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}
}

func TestGigaChatAdapter_RequiresAuthKey(t *testing.T) {
	if _, err := NewGigaChatAdapter(config.GeneratorConfig{}); !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestGigaChatAdapter_TokenIsCached(t *testing.T) {
	var oauthCalls int32
	srv := testServer(t, &oauthCalls, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("chat authorization = %q", got)
		}
		chatReply(`{"ok":true}`)(w, r)
	})
	g := newTestAdapter(t, srv)

	for i := 0; i < 3; i++ {
		if _, err := g.Generate(context.Background(), "prompt"); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&oauthCalls); n != 1 {
		t.Fatalf("oauth calls = %d, want 1", n)
	}
}

func TestGigaChatAdapter_StripsSingleFence(t *testing.T) {
	var oauthCalls int32
	srv := testServer(t, &oauthCalls, chatReply("```json\n{\"plan_title\":\"x\"}\n```"))
	g := newTestAdapter(t, srv)

	got, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != `{"plan_title":"x"}` {
		t.Fatalf("got %q", got)
	}
}

func TestGigaChatAdapter_Upstream500(t *testing.T) {
	var oauthCalls int32
	srv := testServer(t, &oauthCalls, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("boom ", 1000), http.StatusInternalServerError)
	})
	g := newTestAdapter(t, srv)

	_, err := g.Generate(context.Background(), "prompt")
	var upErr *adapter.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", upErr.StatusCode)
	}
	if len(upErr.Body) > upstreamBodyLimit {
		t.Fatalf("body not bounded: %d bytes", len(upErr.Body))
	}
}

func TestGigaChatAdapter_UnauthorizedResetsToken(t *testing.T) {
	var oauthCalls int32
	srv := testServer(t, &oauthCalls, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	g := newTestAdapter(t, srv)

	_, err := g.Generate(context.Background(), "prompt")
	var authErr *adapter.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}

	// A second call must issue a fresh token because the old one was rejected.
	_, _ = g.Generate(context.Background(), "prompt")
	if n := atomic.LoadInt32(&oauthCalls); n != 2 {
		t.Fatalf("oauth calls = %d, want 2", n)
	}
}

func TestGigaChatAdapter_EmptyContent(t *testing.T) {
	var oauthCalls int32
	srv := testServer(t, &oauthCalls, chatReply(""))
	g := newTestAdapter(t, srv)

	if _, err := g.Generate(context.Background(), "prompt"); !errors.Is(err, adapter.ErrEmptyContent) {
		t.Fatalf("err = %v, want ErrEmptyContent", err)
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"plain text", "plain text"},
	}
	for _, tc := range cases {
		if got := StripFence(tc.in); got != tc.want {
			t.Errorf("StripFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
