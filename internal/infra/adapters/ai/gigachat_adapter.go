// File: internal/infra/adapters/ai/gigachat_adapter.go
package ai

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/infra/metrics"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.PlanGeneratorAdapter = (*GigaChatAdapter)(nil)

const upstreamBodyLimit = 2048

// GigaChatAdapter implements adapter.PlanGeneratorAdapter against Sber's
// GigaChat API. Token issuance goes through the NGW OAuth endpoint with a
// Basic authorization key; the access token is cached and reissued shortly
// before it expires.
type GigaChatAdapter struct {
	authKey     string
	authURL     string
	scope       string
	base        string
	model       string
	temperature float64
	client      *http.Client

	mu        sync.Mutex
	token     string
	tokenExp  time.Time
	issueRqID func() string
}

func NewGigaChatAdapter(cfg config.GeneratorConfig) (*GigaChatAdapter, error) {
	if cfg.AuthKey == "" {
		return nil, domain.ErrMissingCredentials
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read ca cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("ca cert file contains no certificates")
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	} else if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &GigaChatAdapter{
		authKey:     cfg.AuthKey,
		authURL:     cfg.AuthURL,
		scope:       cfg.Scope,
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Transport: transport},
		issueRqID:   uuid.NewString,
	}, nil
}

func (g *GigaChatAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := g.generate(ctx, prompt)
	metrics.ObserveGeneratorCall("gigachat", float64(time.Since(start).Milliseconds()), err == nil)
	return text, err
}

func (g *GigaChatAdapter) generate(ctx context.Context, prompt string) (string, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return "", err
	}

	reqBody := struct {
		Model       string            `json:"model"`
		Messages    []adapter.Message `json:"messages"`
		Temperature float64           `json:"temperature"`
	}{
		Model:       g.model,
		Messages:    []adapter.Message{{Role: "user", Content: prompt}},
		Temperature: g.temperature,
	}
	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.base+"/chat/completions", strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Force a fresh token on the next attempt.
		g.mu.Lock()
		g.token = ""
		g.mu.Unlock()
		return "", &adapter.AuthError{Err: fmt.Errorf("chat completion rejected with %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		return "", &adapter.UpstreamError{StatusCode: resp.StatusCode, Body: readBounded(resp.Body)}
	}

	var payload struct {
		Choices []struct {
			Message adapter.Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			return StripFence(c.Message.Content), nil
		}
	}
	return "", adapter.ErrEmptyContent
}

// accessToken returns a cached token or issues a new one. Tokens are treated
// as expired one minute early so a call never starts with a token about to
// lapse mid-flight.
func (g *GigaChatAdapter) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExp.Add(-time.Minute)) {
		return g.token, nil
	}

	form := url.Values{"scope": {g.scope}}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, g.authURL, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", g.issueRqID())
	req.Header.Set("Authorization", "Basic "+g.authKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", adapter.ErrUpstreamTimeout
		}
		return "", &adapter.AuthError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &adapter.AuthError{Err: fmt.Errorf("oauth http %d: %s", resp.StatusCode, readBounded(resp.Body))}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &adapter.AuthError{Err: fmt.Errorf("decode oauth response: %w", err)}
	}
	if payload.AccessToken == "" {
		return "", &adapter.AuthError{Err: errors.New("oauth response has no access_token")}
	}
	g.token = payload.AccessToken
	g.tokenExp = time.UnixMilli(payload.ExpiresAt)
	return g.token, nil
}

// StripFence removes a single surrounding markdown code fence, with or
// without a json language tag. Anything else passes through untouched.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

func classifyTransport(err error) error {
	if isTimeout(err) {
		return adapter.ErrUpstreamTimeout
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

func readBounded(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, upstreamBodyLimit))
	return string(b)
}
