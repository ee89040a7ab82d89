// Package api exposes the trigger and read endpoints over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fee-lottery/internal/cycle"
	"fee-lottery/internal/orchestrator"
	"fee-lottery/internal/storage"
)

// recentWinnersLimit is how many audit records responses embed.
const recentWinnersLimit = 20

// DistributionRunner runs one distribution cycle.
type DistributionRunner interface {
	Run(ctx context.Context) (*orchestrator.Outcome, error)
}

// TriggerRecorder counts trigger results. Optional.
type TriggerRecorder interface {
	RecordTrigger(result string)
}

// Options for creating a Server.
type Options struct {
	Runner  DistributionRunner
	Winners storage.WinnerStore
	Clock   cycle.Clock

	// TriggerSecret is the shared bearer token required on /api/random.
	TriggerSecret string

	// Metrics may be nil.
	Metrics TriggerRecorder

	Logger *log.Logger
}

// Server handles the HTTP surface: an authenticated trigger, an
// unauthenticated read endpoint and a health check.
type Server struct {
	runner  DistributionRunner
	winners storage.WinnerStore
	clock   cycle.Clock
	secret  string
	metrics TriggerRecorder
	logger  *log.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Server{
		runner:  opts.Runner,
		winners: opts.Winners,
		clock:   opts.Clock,
		secret:  opts.TriggerSecret,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/random", s.handleTrigger)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// handleTrigger runs one distribution. Invoked by the external scheduler
// at the cycle cadence; duplicate invocations resolve to AlreadyProcessed.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.record("unauthorized")
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Unauthorized",
		})
		return
	}

	outcome, err := s.runner.Run(r.Context())
	if err != nil {
		s.record("error")
		s.logger.Printf("distribution failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("distribution failed", s.now()))
		return
	}
	s.record(string(outcome.Status))

	winners, err := s.winners.ListRecent(r.Context(), recentWinnersLimit)
	if err != nil {
		// The distribution itself succeeded; degrade to an empty list.
		s.logger.Printf("list recent winners: %v", err)
		winners = nil
	}

	writeJSON(w, http.StatusOK, triggerResponse(outcome, winners, s.now()))
}

// handleStats returns recent audit records and cycle timing. No side effects.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	winners, err := s.winners.ListRecent(r.Context(), recentWinnersLimit)
	if err != nil {
		s.logger.Printf("list recent winners: %v", err)
		writeJSON(w, http.StatusInternalServerError, &StatsResponse{
			Error:    "failed to fetch winners",
			Winners:  []*WinnerView{},
			TimeInfo: s.now(),
		})
		return
	}

	writeJSON(w, http.StatusOK, &StatsResponse{
		Success:  true,
		Winners:  winnerViews(winners),
		TimeInfo: s.now(),
	})
}

// authorized checks the bearer token in constant time.
func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return false
	}
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) {
		return false
	}
	token := header[len(prefix):]
	if header[:len(prefix)] != prefix {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) == 1
}

func (s *Server) now() TimeInfo {
	return timeInfoAt(s.clock, time.Now())
}

func (s *Server) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordTrigger(result)
	}
}

func errorBody(msg string, info TimeInfo) map[string]any {
	return map[string]any{
		"success":              false,
		"error":                msg,
		"serverTime":           info.ServerTime,
		"secondsUntilNext":     info.SecondsUntilNext,
		"nextDistributionTime": info.NextDistributionTime,
		"lastDistributionTime": info.LastDistributionTime,
		"currentCycle":         info.CurrentCycle,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
