package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/database"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/models"
	"github.com/Zeeshan5932/smart-grocery-recipe-planner/internal/session"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

type SessionController interface {
	Start(src session.FrameSource) (session.StartStatus, error)
	Stop() session.StopStatus
	State() session.State
	Summary() models.SessionSummary
}

type SessionHistory interface {
	ListSessions(ctx context.Context, limit int) ([]models.SessionRecord, error)
	GetSession(ctx context.Context, id string) (models.SessionRecord, error)
	ListEvents(ctx context.Context, sessionID string) ([]models.EventRecord, error)
}

// SourceFactory opens a fresh frame source for each started session.
type SourceFactory func() (session.FrameSource, error)

type Options struct {
	Runner    SessionController
	NewSource SourceFactory
	// History is optional; the history routes answer 503 without it.
	History SessionHistory
	Hub     *OverlayHub
	// TokenHash is a bcrypt hash of the viewer token. Empty disables the check.
	TokenHash   string
	CORSOrigins string
	Version     string
	Logger      *slog.Logger
}

type API struct {
	opts    Options
	logger  *slog.Logger
	started time.Time
}

func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CORSOrigins == "" {
		opts.CORSOrigins = "*"
	}
	return &API{opts: opts, logger: logger.With("component", "api"), started: time.Now()}
}

func (a *API) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.enableCORS)
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/api/health", a.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.requireToken)
	api.HandleFunc("/session", a.GetStatistics).Methods(http.MethodGet)
	api.HandleFunc("/session/start", a.StartSession).Methods(http.MethodPost)
	api.HandleFunc("/session/stop", a.StopSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", a.GetSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", a.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/events", a.GetEvents).Methods(http.MethodGet)

	if a.opts.Hub != nil {
		viewers := r.NewRoute().Subrouter()
		viewers.Use(a.requireToken)
		viewers.HandleFunc("/overlay/latest", a.LatestOverlay).Methods(http.MethodGet)
		viewers.Handle("/ws", a.opts.Hub).Methods(http.MethodGet)
	}
	return r
}

// HashToken returns the bcrypt hash to configure as the viewer token hash.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (a *API) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.opts.TokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := requestToken(r)
		if token == "" || bcrypt.CompareHashAndPassword([]byte(a.opts.TokenHash), []byte(token)) != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.opts.CORSOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatus{
		Status:       "healthy",
		SessionState: string(a.opts.Runner.State()),
		Uptime:       time.Since(a.started).Round(time.Second),
		Version:      a.opts.Version,
	}
	if a.opts.Hub != nil {
		status.ActiveViewers = a.opts.Hub.ActiveViewers()
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) GetStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Runner.Summary())
}

func (a *API) StartSession(w http.ResponseWriter, r *http.Request) {
	if a.opts.Runner.State() == session.StateRunning {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(session.StatusAlreadyRunning)})
		return
	}
	if a.opts.NewSource == nil {
		writeError(w, http.StatusServiceUnavailable, "No frame source configured")
		return
	}

	src, err := a.opts.NewSource()
	if err != nil {
		a.logger.Error("open frame source", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to open frame source")
		return
	}
	status, err := a.opts.Runner.Start(src)
	if err != nil {
		src.Close()
		a.logger.Error("start session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	if status == session.StatusAlreadyRunning {
		src.Close()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (a *API) StopSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": string(a.opts.Runner.Stop())})
}

func (a *API) GetSessions(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "Session history is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	sessions, err := a.opts.History.ListSessions(ctx, limit)
	if err != nil {
		a.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "Session history is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := a.opts.History.GetSession(ctx, mux.Vars(r)["id"])
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		a.logger.Error("get session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) GetEvents(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "Session history is disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	events, err := a.opts.History.ListEvents(ctx, mux.Vars(r)["id"])
	if err != nil {
		a.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}
	if events == nil {
		events = []models.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) LatestOverlay(w http.ResponseWriter, r *http.Request) {
	overlay, ok := a.opts.Hub.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "No overlay yet")
		return
	}
	writeJSON(w, http.StatusOK, overlay)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
