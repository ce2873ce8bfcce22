package adminserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tansucloud/tansu-outbox/pkg/auth"
	"github.com/tansucloud/tansu-outbox/pkg/config"
	"github.com/tansucloud/tansu-outbox/pkg/model"
	"github.com/tansucloud/tansu-outbox/pkg/store/postgres"
)

func newTestServer(t *testing.T) (*Server, *gorm.DB, string) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.OutboxEvent{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	server := NewServer(postgres.NewOutboxRepository(db), cfg, zap.NewNop())

	tokens := auth.NewAdminTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	token, err := tokens.GenerateAdminToken("ops@tansu.cloud", "acme")
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return server, db, token
}

func seedEvent(t *testing.T, db *gorm.DB, status string, occurredAt time.Time) *model.OutboxEvent {
	t.Helper()
	event := &model.OutboxEvent{
		ID:         uuid.New(),
		EventType:  "tenant.created",
		Payload:    model.JSONB{"tenant": "acme"},
		Status:     status,
		OccurredAt: occurredAt,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	return event
}

func doRequest(server *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(server, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestEventsRequireAuthorization(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := doRequest(server, http.MethodGet, "/api/v1/events", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	w = doRequest(server, http.MethodGet, "/api/v1/events", "not-a-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", w.Code)
	}
}

func TestListEvents(t *testing.T) {
	server, db, token := newTestServer(t)

	base := time.Now().UTC().Add(-time.Minute)
	seedEvent(t, db, model.OutboxStatusPending, base)
	seedEvent(t, db, model.OutboxStatusDispatched, base.Add(time.Second))

	w := doRequest(server, http.MethodGet, "/api/v1/events", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Events []struct {
			ID        string `json:"id"`
			EventType string `json:"event_type"`
			Status    string `json:"status"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(body.Events))
	}
	if body.Events[0].EventType != "tenant.created" {
		t.Fatalf("unexpected event type %q", body.Events[0].EventType)
	}
}

func TestListEventsFiltersByStatus(t *testing.T) {
	server, db, token := newTestServer(t)

	base := time.Now().UTC().Add(-time.Minute)
	seedEvent(t, db, model.OutboxStatusPending, base)
	seedEvent(t, db, model.OutboxStatusDeadLettered, base.Add(time.Second))

	w := doRequest(server, http.MethodGet, "/api/v1/events?status=dead_lettered", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Events []struct {
			Status string `json:"status"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(body.Events))
	}
	if body.Events[0].Status != model.OutboxStatusDeadLettered {
		t.Fatalf("unexpected status %q", body.Events[0].Status)
	}
}

func TestListEventsRejectsUnknownStatus(t *testing.T) {
	server, _, token := newTestServer(t)

	w := doRequest(server, http.MethodGet, "/api/v1/events?status=bogus", token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}
}

func TestEventStats(t *testing.T) {
	server, db, token := newTestServer(t)

	base := time.Now().UTC().Add(-time.Minute)
	seedEvent(t, db, model.OutboxStatusPending, base)
	seedEvent(t, db, model.OutboxStatusPending, base.Add(time.Second))
	seedEvent(t, db, model.OutboxStatusDispatched, base.Add(2*time.Second))

	w := doRequest(server, http.MethodGet, "/api/v1/events/stats", token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Counts map[string]int64 `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Counts[model.OutboxStatusPending] != 2 {
		t.Fatalf("expected 2 pending, got %d", body.Counts[model.OutboxStatusPending])
	}
	if body.Counts[model.OutboxStatusDispatched] != 1 {
		t.Fatalf("expected 1 dispatched, got %d", body.Counts[model.OutboxStatusDispatched])
	}
}
