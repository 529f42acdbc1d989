package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/storage"
)

type mockProcessor struct {
	calls   chan struct{}
	release chan struct{}
	err     error
}

func (m *mockProcessor) ProcessPromotions(ctx context.Context) error {
	select {
	case m.calls <- struct{}{}:
	default:
	}
	if m.release != nil {
		<-m.release
	}
	return m.err
}

type mockSettings struct {
	mu      sync.Mutex
	current models.NotificationSettings
	err     error
}

func (m *mockSettings) Snapshot() models.NotificationSettings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockSettings) SetNotificationChannel(ctx context.Context, channelID string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.ChannelID = channelID
	return nil
}

func (m *mockSettings) SetMonthlySalesCutoff(ctx context.Context, cutoff int) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.MonthlySalesCutoff = cutoff
	return nil
}

type mockTerms struct {
	terms   []string
	removed []string
	err     error
}

func (m *mockTerms) ListSearchTerms(ctx context.Context) ([]string, error) {
	return m.terms, m.err
}

func (m *mockTerms) AddSearchTerm(ctx context.Context, term string) error {
	if strings.TrimSpace(term) == "" {
		return storage.ErrEmptySearchTerm
	}
	if m.err != nil {
		return m.err
	}
	m.terms = append(m.terms, term)
	return nil
}

func (m *mockTerms) RemoveSearchTerm(ctx context.Context, term string) error {
	if strings.TrimSpace(term) == "" {
		return storage.ErrEmptySearchTerm
	}
	m.removed = append(m.removed, term)
	return m.err
}

type mockCounter struct {
	count int64
	err   error
}

func (m *mockCounter) CountRecentProducts(ctx context.Context) (int64, error) {
	return m.count, m.err
}

func newTestServer(p *mockProcessor, settings *mockSettings, terms *mockTerms) *Server {
	return NewServer(context.Background(), p, settings, terms, &mockCounter{count: 42})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&mockProcessor{}, &mockSettings{}, &mockTerms{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body %q", rec.Body.String())
	}
}

func TestProcessPromotionsHandler(t *testing.T) {
	p := &mockProcessor{calls: make(chan struct{}, 1), release: make(chan struct{})}
	srv := newTestServer(p, &mockSettings{}, &mockTerms{})
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/process-promotions", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected processor to be invoked")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 while a run is active, got %d", rec.Code)
	}

	close(p.release)
	srv.Wait()

	p.release = nil
	p.err = errors.New("boom")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202 after previous run finished, got %d", rec.Code)
	}
	<-p.calls
	srv.Wait()
}

func TestSchedule(t *testing.T) {
	p := &mockProcessor{calls: make(chan struct{}, 4)}
	srv := newTestServer(p, &mockSettings{}, &mockTerms{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Schedule(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected scheduled run")
	}
	cancel()
	<-done
	srv.Wait()
}

func TestSettingsHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		storeErr   error
		wantStatus int
		want       models.NotificationSettings
	}{
		{"get", http.MethodGet, "", nil, http.StatusOK, models.NotificationSettings{ChannelID: "1", MonthlySalesCutoff: 50}},
		{"update channel", http.MethodPut, `{"channel_id":" 999 "}`, nil, http.StatusOK, models.NotificationSettings{ChannelID: "999", MonthlySalesCutoff: 50}},
		{"update cutoff", http.MethodPost, `{"monthly_sales_cutoff":200}`, nil, http.StatusOK, models.NotificationSettings{ChannelID: "1", MonthlySalesCutoff: 200}},
		{"negative cutoff", http.MethodPut, `{"monthly_sales_cutoff":-1}`, nil, http.StatusBadRequest, models.NotificationSettings{}},
		{"empty update", http.MethodPut, `{}`, nil, http.StatusBadRequest, models.NotificationSettings{}},
		{"bad json", http.MethodPut, `{`, nil, http.StatusBadRequest, models.NotificationSettings{}},
		{"store failure", http.MethodPut, `{"channel_id":"2"}`, errors.New("firestore down"), http.StatusInternalServerError, models.NotificationSettings{}},
		{"bad method", http.MethodDelete, "", nil, http.StatusMethodNotAllowed, models.NotificationSettings{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &mockSettings{current: models.NotificationSettings{ChannelID: "1", MonthlySalesCutoff: 50}, err: tt.storeErr}
			srv := newTestServer(&mockProcessor{}, settings, &mockTerms{})

			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, httptest.NewRequest(tt.method, "/settings", strings.NewReader(tt.body)))
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got models.NotificationSettings
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got != tt.want {
				t.Errorf("Got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSearchTermsHandler(t *testing.T) {
	terms := &mockTerms{terms: []string{"kettle"}}
	srv := newTestServer(&mockProcessor{}, &mockSettings{}, terms)
	h := srv.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search-terms", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string][]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(body["terms"]) != 1 || body["terms"][0] != "kettle" {
		t.Errorf("Unexpected terms %v", body["terms"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search-terms", strings.NewReader(`{"term":"air fryer"}`)))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on add, got %d", rec.Code)
	}
	if len(terms.terms) != 2 || terms.terms[1] != "air fryer" {
		t.Errorf("Expected term added, got %v", terms.terms)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/search-terms?term=kettle", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", rec.Code)
	}
	if len(terms.removed) != 1 || terms.removed[0] != "kettle" {
		t.Errorf("Expected kettle removed, got %v", terms.removed)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/search-terms", strings.NewReader(`{"term":"  "}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank term, got %d", rec.Code)
	}

	terms.err = errors.New("firestore down")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search-terms", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on store failure, got %d", rec.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	srv := newTestServer(&mockProcessor{}, &mockSettings{}, &mockTerms{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got statsResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.RecentProducts != 42 || got.Running {
		t.Errorf("Unexpected stats %+v", got)
	}

	srv.recent = &mockCounter{err: errors.New("firestore down")}
	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}
