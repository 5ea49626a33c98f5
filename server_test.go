package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"i4.energy/across/semgw/meter"
	"i4.energy/across/semgw/store"
)

type fakeHistory struct {
	latest  meter.Reading
	days    map[string]store.Summary
	err     error
	lastDay time.Time
}

func (f *fakeHistory) Latest(context.Context) (meter.Reading, error) {
	if f.err != nil {
		return meter.Reading{}, f.err
	}
	if f.latest.Time.IsZero() {
		return meter.Reading{}, store.ErrNoReadings
	}
	return f.latest, nil
}

func (f *fakeHistory) DailySummary(_ context.Context, day time.Time) (store.Summary, error) {
	f.lastDay = day
	if f.err != nil {
		return store.Summary{}, f.err
	}
	sum, ok := f.days[day.Format(time.DateOnly)]
	if !ok {
		return store.Summary{}, store.ErrNoReadings
	}
	return sum, nil
}

func newServer(h History) *Server {
	return &Server{
		Logger:   slog.New(slog.DiscardHandler),
		History:  h,
		Location: time.UTC,
	}
}

func TestHandlePower(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		hist   *fakeHistory
		status int
		body   string
	}{
		{"latest", &fakeHistory{latest: meter.Reading{Time: at, Watts: 512, TID: 7}}, http.StatusOK, `"power":512`},
		{"empty", &fakeHistory{}, http.StatusNotFound, "no readings"},
		{"store failure", &fakeHistory{err: errors.New("disk I/O error")}, http.StatusInternalServerError, "disk I/O error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newServer(tt.hist).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/power", nil))
			if rec.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("expected body to contain %q, got %s", tt.body, rec.Body.String())
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	hist := &fakeHistory{days: map[string]store.Summary{
		"2026-10-14": {Day: "2026-10-14", Samples: 3, AvgWatts: 400, MinWatts: 100, MaxWatts: 700, EnergyWh: 12.5},
	}}
	s := newServer(hist)

	t.Run("day", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?day=2026-10-14", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var sum store.Summary
		if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
			t.Fatal(err)
		}
		if sum.Samples != 3 || sum.EnergyWh != 12.5 {
			t.Errorf("unexpected summary %+v", sum)
		}
	})

	t.Run("today by default", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
		if got, want := hist.lastDay.Format(time.DateOnly), time.Now().UTC().Format(time.DateOnly); got != want {
			t.Errorf("expected today %s, got %s", want, got)
		}
	})

	t.Run("bad day", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?day=14.10.2026", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/history", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", rec.Code)
		}
	})
}

func TestHub(t *testing.T) {
	hub := NewHub(slog.New(slog.DiscardHandler))
	s := newServer(&fakeHistory{})
	s.Hub = hub
	srv := httptest.NewServer(s)
	defer srv.Close()

	hub.Publish(meter.Reading{Time: time.Unix(0, 0).UTC(), Watts: 100, TID: 1})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() meter.Reading {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var r meter.Reading
		if err := conn.ReadJSON(&r); err != nil {
			t.Fatalf("read: %v", err)
		}
		return r
	}

	if r := read(); r.Watts != 100 {
		t.Errorf("expected the latest reading on connect, got %+v", r)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := hub.Record(context.Background(), meter.Reading{Time: time.Unix(60, 0).UTC(), Watts: -50, TID: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r := read(); r.Watts != -50 || r.TID != 2 {
		t.Errorf("expected published reading, got %+v", r)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.Clients(); n != 0 {
		t.Errorf("expected client to be removed, %d left", n)
	}
}
