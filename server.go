package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"i4.energy/across/semgw/meter"
	"i4.energy/across/semgw/store"
)

// History is the read side of the readings store
type History interface {
	Latest(ctx context.Context) (meter.Reading, error)
	DailySummary(ctx context.Context, day time.Time) (store.Summary, error)
}

// Server handles incoming HTTP requests for the latest reading, daily
// history and the live reading stream
type Server struct {
	Logger   *slog.Logger
	History  History
	Hub      http.Handler
	Location *time.Location
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /power", s.handlePower)
	mux.HandleFunc("GET /history", s.handleHistory)
	if s.Hub != nil {
		mux.Handle("GET /ws", s.Hub)
	}
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("Failed to write response", "error", err)
	}
}

// handlePower returns the most recent instantaneous power reading
func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	reading, err := s.History.Latest(r.Context())
	if errors.Is(err, store.ErrNoReadings) {
		s.sendError(w, "no readings available yet", http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("Failed to load latest reading", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, reading)
}

// handleHistory returns the aggregate of the day given as ?day=YYYY-MM-DD,
// today if omitted
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	day := time.Now().In(loc)
	if q := r.URL.Query().Get("day"); q != "" {
		d, err := time.ParseInLocation(time.DateOnly, q, loc)
		if err != nil {
			s.sendError(w, "day must be formatted as YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = d
	}

	sum, err := s.History.DailySummary(r.Context(), day)
	if errors.Is(err, store.ErrNoReadings) {
		s.sendError(w, "no readings for "+day.Format(time.DateOnly), http.StatusNotFound)
		return
	}
	if err != nil {
		s.Logger.Error("Failed to summarize readings", "error", err, "day", day.Format(time.DateOnly))
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, sum)
}
