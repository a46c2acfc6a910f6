// File: internal/infra/adapters/schedule/client.go
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/ports/adapter"
)

// Compile-time assurance the client satisfies the port
var _ adapter.ScheduleProvider = (*Client)(nil)

// Client talks to the university schedule service. Every call carries its own
// short timeout; failures surface to the caller, which degrades to default
// context rather than failing the job.
type Client struct {
	base    string
	timeout func(ctx context.Context) (context.Context, context.CancelFunc)
	client  *http.Client
}

func NewClient(cfg config.ScheduleConfig) *Client {
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return context.WithTimeout(ctx, cfg.CallTimeout)
		},
		client: &http.Client{},
	}
}

func (c *Client) CurrentPeriod(ctx context.Context) (string, error) {
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	var payload struct {
		TypeName string `json:"type_name"`
	}
	if err := c.getJSON(ctx, c.base+"/current-week", &payload); err != nil {
		return "", err
	}
	if payload.TypeName == "" {
		return "", fmt.Errorf("current-week response has no type_name: %w", domain.ErrContextUnavailable)
	}
	return payload.TypeName, nil
}

func (c *Client) FreeSlots(ctx context.Context, groupID string) (adapter.FreeTimetable, error) {
	ctx, cancel := c.timeout(ctx)
	defer cancel()

	var timetable adapter.FreeTimetable
	if err := c.getJSON(ctx, c.base+"/free-time/"+url.PathEscape(groupID), &timetable); err != nil {
		return nil, err
	}
	return timetable, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("schedule service http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
