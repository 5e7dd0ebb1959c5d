package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studyhall/internal/engine"
	"studyhall/internal/registry"
	"studyhall/internal/stats"
	"studyhall/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg := registry.New()
	store := stats.NewStore(3000, nil, nil, nil)
	eng := engine.New(reg, store, nil, nil, nil, engine.Config{
		SessionDuration: 55 * time.Minute,
		TickInterval:    time.Minute,
		Quorum:          3,
	})
	t.Cleanup(eng.Stop)

	return NewServer(eng, reg, store, nil, nil)
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func createSession(t *testing.T, server *Server, roomID, userID string) types.SessionSnapshot {
	t.Helper()

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"room_id":    roomID,
		"user_id":    userID,
		"first_name": "Tester",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", resp.Code, resp.Body.String())
	}
	var snap types.SessionSnapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return snap
}

func TestCreateSessionEndpoint(t *testing.T) {
	server := newTestServer(t)

	snap := createSession(t, server, "room-1", "alice")
	if snap.RoomID != "room-1" || snap.CreatorID != "alice" {
		t.Errorf("unexpected session: %+v", snap)
	}
	if snap.State != types.StateWaiting {
		t.Errorf("expected waiting state, got %q", snap.State)
	}
}

func TestCreateSessionRoomBusy(t *testing.T) {
	server := newTestServer(t)

	first := createSession(t, server, "room-1", "alice")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"room_id":    "room-1",
		"user_id":    "bob",
		"first_name": "Bob",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	var body struct {
		Error    string                `json:"error"`
		Existing types.SessionSnapshot `json:"existing_session"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode conflict body: %v", err)
	}
	if body.Existing.ID != first.ID {
		t.Errorf("expected existing session %s, got %s", first.ID, body.Existing.ID)
	}
}

func TestCreateSessionBadRequest(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", recorder.Code)
	}

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"room_id": "room-1",
		"user_id": "not valid!",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid user ID, got %d", resp.Code)
	}
}

func TestJoinEndpoint(t *testing.T) {
	server := newTestServer(t)

	snap := createSession(t, server, "room-1", "alice")
	path := fmt.Sprintf("/api/v1/sessions/%s/join", snap.ID)

	resp := doJSON(t, server, http.MethodPost, path, map[string]interface{}{
		"user_id":    "bob",
		"first_name": "Bob",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("join returned %d: %s", resp.Code, resp.Body.String())
	}
	var outcome engine.JoinOutcome
	if err := json.Unmarshal(resp.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if outcome.AlreadyJoined || outcome.ParticipantCount != 1 {
		t.Errorf("unexpected outcome: %+v", outcome)
	}

	resp = doJSON(t, server, http.MethodPost, path, map[string]interface{}{
		"user_id":    "bob",
		"first_name": "Bob",
	})
	if err := json.Unmarshal(resp.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if !outcome.AlreadyJoined {
		t.Error("expected already_joined on duplicate join")
	}
}

func TestJoinUnknownSession(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/v1/sessions/missing/join", map[string]interface{}{
		"user_id": "bob",
	})
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.Code)
	}
}

func TestExtendAuthorization(t *testing.T) {
	server := newTestServer(t)

	snap := createSession(t, server, "room-1", "alice")
	path := fmt.Sprintf("/api/v1/sessions/%s/extend", snap.ID)

	resp := doJSON(t, server, http.MethodPost, path, map[string]interface{}{"user_id": "bob"})
	if resp.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-creator, got %d", resp.Code)
	}

	resp = doJSON(t, server, http.MethodPost, path, map[string]interface{}{"user_id": "alice"})
	if resp.Code != http.StatusOK {
		t.Errorf("expected 200 for creator, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestEndEndpointIdempotent(t *testing.T) {
	server := newTestServer(t)

	snap := createSession(t, server, "room-1", "alice")
	path := fmt.Sprintf("/api/v1/sessions/%s?user_id=alice", snap.ID)

	resp := doJSON(t, server, http.MethodDelete, path, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("end returned %d: %s", resp.Code, resp.Body.String())
	}
	var outcome engine.TerminationOutcome
	if err := json.Unmarshal(resp.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if outcome.AlreadyEnded {
		t.Error("first end must be fresh")
	}
	if outcome.Session.EndCause != types.CauseManual {
		t.Errorf("expected manual cause, got %q", outcome.Session.EndCause)
	}

	resp = doJSON(t, server, http.MethodDelete, path, nil)
	if err := json.Unmarshal(resp.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("failed to decode outcome: %v", err)
	}
	if !outcome.AlreadyEnded {
		t.Error("expected already_ended on repeat end")
	}
}

func TestGetSessionEndpoint(t *testing.T) {
	server := newTestServer(t)

	snap := createSession(t, server, "room-1", "alice")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/sessions/"+snap.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get returned %d", resp.Code)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/sessions/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown session, got %d", resp.Code)
	}
}

func TestGetUserEndpoint(t *testing.T) {
	server := newTestServer(t)

	createSession(t, server, "room-1", "alice")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/users/alice", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get user returned %d", resp.Code)
	}
	var profile types.UserProfile
	if err := json.Unmarshal(resp.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.ID != "alice" {
		t.Errorf("unexpected profile: %+v", profile)
	}

	// Unknown users are created lazily with placeholder identity.
	resp = doJSON(t, server, http.MethodGet, "/api/v1/users/newcomer", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected lazy profile creation, got %d", resp.Code)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &profile); err != nil {
		t.Fatalf("failed to decode profile: %v", err)
	}
	if profile.FirstName != "guest" {
		t.Errorf("expected placeholder name, got %q", profile.FirstName)
	}

	resp = doJSON(t, server, http.MethodGet, "/api/v1/users/bad%20id", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid user ID, got %d", resp.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("health returned %d", resp.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	if body["database"] != "disabled" {
		t.Errorf("expected database disabled without archiver, got %v", body["database"])
	}
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS origin header")
	}
}
