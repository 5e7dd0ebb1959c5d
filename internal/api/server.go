package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"studyhall/internal/engine"
	"studyhall/internal/registry"
	"studyhall/internal/stats"
	"studyhall/internal/websocket"
	"studyhall/pkg/interfaces"
	"studyhall/pkg/types"
)

const healthCheckTimeout = 5 * time.Second

// Server exposes the session lifecycle over HTTP and hosts the websocket
// upgrade endpoint.
type Server struct {
	engine    *engine.Engine
	registry  *registry.Registry
	stats     *stats.Store
	archiver  interfaces.Archiver
	wsHandler *websocket.Handler
	router    chi.Router
}

// NewServer wires the HTTP surface. archiver may be nil; archived-session
// lookups then degrade to not-found.
func NewServer(eng *engine.Engine, reg *registry.Registry, store *stats.Store, archiver interfaces.Archiver, wsHandler *websocket.Handler) *Server {
	s := &Server{
		engine:    eng,
		registry:  reg,
		stats:     store,
		archiver:  archiver,
		wsHandler: wsHandler,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if wsHandler != nil {
		r.Get("/ws", wsHandler.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/", s.handleRecentSessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleEndSession)
				r.Post("/join", s.handleJoin)
				r.Post("/leave", s.handleLeave)
				r.Post("/extend", s.handleExtend)
			})
		})
		r.Get("/users/{userID}", s.handleGetUser)
	})

	s.router = r
	return s
}

// Router returns the mounted handler tree.
func (s *Server) Router() http.Handler {
	return s.router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createSessionRequest struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Private   bool   `json:"private"`
}

type memberRequest struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	creator := types.UserRef{
		ID:        req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	session, err := s.engine.Start(r.Context(), req.RoomID, creator, req.Private)
	if err != nil {
		var busy *registry.RoomBusyError
		if errors.As(err, &busy) {
			existing, _ := s.engine.Status(busy.Existing.ID)
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error":            "room already has an active session",
				"existing_session": existing,
			})
			return
		}
		s.writeLifecycleError(w, err)
		return
	}

	snap, _ := s.engine.Status(session.ID)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := types.UserRef{
		ID:        req.UserID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}

	outcome, err := s.engine.Join(r.Context(), sessionID, user)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.Leave(r.Context(), sessionID, req.UserID); err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.engine.Extend(r.Context(), sessionID, req.UserID); err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	snap, _ := s.engine.Status(sessionID)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	actorID := r.URL.Query().Get("user_id")

	outcome, err := s.engine.End(r.Context(), sessionID, actorID)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleGetSession resolves live sessions from the registry first and falls
// back to the archive for sessions already swept out of memory.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if snap, ok := s.engine.Status(sessionID); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}

	if s.archiver != nil {
		snap, err := s.archiver.GetArchivedSession(r.Context(), sessionID)
		if err == nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			log.Printf("Archived session lookup failed for %s: %v", sessionID, err)
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}
	}

	writeError(w, http.StatusNotFound, "session not found")
}

func (s *Server) handleRecentSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	if s.archiver == nil {
		writeJSON(w, http.StatusOK, []*types.SessionSnapshot{})
		return
	}

	snaps, err := s.archiver.ListRecentSessions(r.Context(), limit)
	if err != nil {
		log.Printf("Recent session listing failed: %v", err)
		writeError(w, http.StatusInternalServerError, "session listing failed")
		return
	}
	if snaps == nil {
		snaps = []*types.SessionSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleGetUser returns the user's profile, creating it lazily on first
// contact the same way the engine does.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if !types.IsValidUserID(userID) {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	s.stats.Profile(r.Context(), userID)
	profile, ok := s.stats.Snapshot(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	dbStatus := "disabled"
	if s.archiver != nil {
		dbStatus = "healthy"
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.archiver.HealthCheck(ctx); err != nil {
			log.Printf("Health check failed: %v", err)
			dbStatus = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	live, rooms := s.registry.Counts()

	body := map[string]interface{}{
		"status":   status,
		"database": dbStatus,
		"sessions": map[string]int{
			"live":         live,
			"active_rooms": rooms,
		},
		"stats": s.stats.Overview(),
	}
	if s.wsHandler != nil {
		body["connections"] = s.wsHandler.Stats()
	}

	writeJSON(w, code, body)
}

// writeLifecycleError maps engine and validation errors onto HTTP statuses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engine.ErrSessionEnded):
		writeError(w, http.StatusGone, "session has ended")
	case errors.Is(err, engine.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "only the session creator may do that")
	case errors.Is(err, engine.ErrNotParticipant):
		writeError(w, http.StatusConflict, "user is not a participant")
	case errors.Is(err, types.ErrInvalidUserID), errors.Is(err, types.ErrInvalidRoomID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Unhandled lifecycle error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
