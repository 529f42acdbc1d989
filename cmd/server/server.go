package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/processor"
	"github.com/pauljones0/amazon-promo-bot/internal/storage"
)

// runTimeout bounds a single scrape-and-notify run.
const runTimeout = 45 * time.Minute

type SettingsStore interface {
	Snapshot() models.NotificationSettings
	SetNotificationChannel(ctx context.Context, channelID string) error
	SetMonthlySalesCutoff(ctx context.Context, cutoff int) error
}

type SearchTermStore interface {
	ListSearchTerms(ctx context.Context) ([]string, error)
	AddSearchTerm(ctx context.Context, term string) error
	RemoveSearchTerm(ctx context.Context, term string) error
}

type RecentCounter interface {
	CountRecentProducts(ctx context.Context) (int64, error)
}

type Server struct {
	processor processor.Processor
	settings  SettingsStore
	terms     SearchTermStore
	recent    RecentCounter

	baseCtx context.Context
	running atomic.Bool
	wg      sync.WaitGroup
}

func NewServer(ctx context.Context, p processor.Processor, settings SettingsStore, terms SearchTermStore, recent RecentCounter) *Server {
	return &Server{processor: p, settings: settings, terms: terms, recent: recent, baseCtx: ctx}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.ProcessPromotionsHandler)
	mux.HandleFunc("/process-promotions", s.ProcessPromotionsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/settings", s.SettingsHandler)
	mux.HandleFunc("/search-terms", s.SearchTermsHandler)
	mux.HandleFunc("/stats", s.StatsHandler)
	return mux
}

// Wait blocks until any in-flight run has finished.
func (s *Server) Wait() { s.wg.Wait() }

// startRun launches a background run unless one is already active.
func (s *Server) startRun(trigger string) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic in ProcessPromotions", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(s.baseCtx, runTimeout)
		defer cancel()
		slog.Info("Promotion run started", "trigger", trigger)
		if err := s.processor.ProcessPromotions(ctx); err != nil {
			slog.Error("Error processing promotions", "trigger", trigger, "exhausted", processor.IsExhausted(err), "error", err)
		}
	}()
	return true
}

// Schedule triggers a run every interval until ctx is done.
func (s *Server) Schedule(ctx context.Context, interval time.Duration) {
	slog.Info("Scheduler enabled", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.startRun("schedule") {
				slog.Warn("Skipping scheduled run, previous run still active")
			}
		}
	}
}

func (s *Server) ProcessPromotionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.startRun("http") {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintln(w, "Promotion processing already running.")
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "Promotion processing started.")
}

type settingsUpdate struct {
	ChannelID          *string `json:"channel_id"`
	MonthlySalesCutoff *int    `json:"monthly_sales_cutoff"`
}

func (s *Server) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.settings.Snapshot())
	case http.MethodPut, http.MethodPost:
		var req settingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.ChannelID == nil && req.MonthlySalesCutoff == nil {
			http.Error(w, "no settings supplied", http.StatusBadRequest)
			return
		}
		if req.MonthlySalesCutoff != nil && *req.MonthlySalesCutoff < 0 {
			http.Error(w, "monthly_sales_cutoff must be non-negative", http.StatusBadRequest)
			return
		}
		if req.ChannelID != nil {
			if err := s.settings.SetNotificationChannel(r.Context(), strings.TrimSpace(*req.ChannelID)); err != nil {
				slog.Error("Failed to update notification channel", "error", err)
				http.Error(w, "failed to save settings", http.StatusInternalServerError)
				return
			}
		}
		if req.MonthlySalesCutoff != nil {
			if err := s.settings.SetMonthlySalesCutoff(r.Context(), *req.MonthlySalesCutoff); err != nil {
				slog.Error("Failed to update monthly sales cutoff", "error", err)
				http.Error(w, "failed to save settings", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, s.settings.Snapshot())
	default:
		w.Header().Set("Allow", "GET, PUT, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type searchTermRequest struct {
	Term string `json:"term"`
}

func (s *Server) SearchTermsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		terms, err := s.terms.ListSearchTerms(r.Context())
		if err != nil {
			slog.Error("Failed to list search terms", "error", err)
			http.Error(w, "failed to list search terms", http.StatusInternalServerError)
			return
		}
		if terms == nil {
			terms = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"terms": terms})
	case http.MethodPost, http.MethodDelete:
		term := r.URL.Query().Get("term")
		if term == "" && r.Body != nil {
			var req searchTermRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
				term = req.Term
			}
		}
		var err error
		if r.Method == http.MethodPost {
			err = s.terms.AddSearchTerm(r.Context(), term)
		} else {
			err = s.terms.RemoveSearchTerm(r.Context(), term)
		}
		switch {
		case errors.Is(err, storage.ErrEmptySearchTerm):
			http.Error(w, "term is required", http.StatusBadRequest)
		case err != nil:
			slog.Error("Failed to update search terms", "method", r.Method, "error", err)
			http.Error(w, "failed to update search terms", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type statsResponse struct {
	Running        bool  `json:"running"`
	RecentProducts int64 `json:"recent_products"`
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.recent.CountRecentProducts(r.Context())
	if err != nil {
		slog.Error("Failed to count recent products", "error", err)
		http.Error(w, "failed to read stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Running: s.running.Load(), RecentProducts: count})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
