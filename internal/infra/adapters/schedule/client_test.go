package schedule

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ScheduleConfig{
		BaseURL:     srv.URL,
		CallTimeout: 500 * time.Millisecond,
	})
}

func TestCurrentPeriod(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/current-week", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type_name":"numerator"}`))
	})
	c := newTestClient(t, mux)

	got, err := c.CurrentPeriod(context.Background())
	if err != nil {
		t.Fatalf("current period: %v", err)
	}
	if got != "numerator" {
		t.Fatalf("got %q", got)
	}
}

func TestCurrentPeriod_EmptyTypeName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/current-week", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	c := newTestClient(t, mux)

	_, err := c.CurrentPeriod(context.Background())
	if !errors.Is(err, domain.ErrContextUnavailable) {
		t.Fatalf("err = %v, want ErrContextUnavailable", err)
	}
}

func TestFreeSlots(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/free-time/IS-21", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Monday":{"numerator":[{"from":"18:00","to":"20:00"}]}}`))
	})
	c := newTestClient(t, mux)

	tt, err := c.FreeSlots(context.Background(), "IS-21")
	if err != nil {
		t.Fatalf("free slots: %v", err)
	}
	slots := tt["Monday"]["numerator"]
	if len(slots) != 1 || slots[0].From != "18:00" || slots[0].To != "20:00" {
		t.Fatalf("unexpected timetable: %+v", tt)
	}
}

func TestFreeSlots_ServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	if _, err := c.FreeSlots(context.Background(), "IS-21"); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestCallTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/current-week", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"type_name":"numerator"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(config.ScheduleConfig{BaseURL: srv.URL, CallTimeout: 20 * time.Millisecond})
	if _, err := c.CurrentPeriod(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
}
