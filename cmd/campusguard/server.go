package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"campusguard/internal/database"
	apperrors "campusguard/internal/errors"
	"campusguard/internal/metrics"
	"campusguard/internal/middleware"
	"campusguard/internal/models"
	"campusguard/internal/moderation"
	"campusguard/internal/validation"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Pipeline is the message-send surface the server exposes.
type Pipeline interface {
	SubmitMessage(ctx context.Context, content string, participants models.Participants) (*models.SubmitResult, error)
}

type Server struct {
	cfg      *models.Config
	router   *mux.Router
	logger   *logrus.Logger
	pipeline Pipeline
	queue    *moderation.Queue
	registry *metrics.Registry
	server   *http.Server
	started  time.Time
}

func NewServer(cfg *models.Config, pipeline Pipeline, queue *moderation.Queue, registry *metrics.Registry, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		router:   mux.NewRouter(),
		logger:   logger,
		pipeline: pipeline,
		queue:    queue,
		registry: registry,
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	obs := middleware.Observability(s.logger, s.registry)

	s.router.Handle("/health", obs(s.handleHealth())).Methods(http.MethodGet)
	s.router.Handle("/metrics", obs(s.handleMetrics())).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Handle("/messages", obs(s.handleSubmitMessage())).Methods(http.MethodPost)
	api.Handle("/moderation/queue", obs(s.handleListQueue())).Methods(http.MethodGet)
	api.Handle("/moderation/stats", obs(s.handleStats())).Methods(http.MethodGet)
	api.Handle("/moderation/changes", obs(s.handleChanges())).Methods(http.MethodGet)
	api.Handle("/moderation/entries/{id}", obs(s.handleGetEntry())).Methods(http.MethodGet)
	api.Handle("/moderation/entries/{id}", obs(s.handleModerate())).Methods(http.MethodPost)

	// The websocket upgrade needs the raw ResponseWriter, so the updates
	// feed skips the observability wrapper.
	api.HandleFunc("/moderation/updates", s.handleUpdates()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type submitMessageRequest struct {
	Content    string               `json:"content"`
	Sender     participantPayload   `json:"sender"`
	Recipients []participantPayload `json:"recipients"`
}

type participantPayload struct {
	UserID    string          `json:"userId"`
	Role      models.UserRole `json:"role"`
	Birthdate *time.Time      `json:"birthdate,omitempty"`
	Enrolled  bool            `json:"enrolled"`
}

func (p participantPayload) profile() models.UserProfile {
	profile := models.UserProfile{
		UserID:   p.UserID,
		Role:     p.Role,
		Enrolled: p.Enrolled,
	}
	if p.Birthdate != nil {
		profile.Birthdate = *p.Birthdate
	}
	return profile
}

func (s *Server) handleSubmitMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed request body"))
			return
		}

		if err := validation.ValidateMessageContent(req.Content); err != nil {
			s.writeError(w, err)
			return
		}
		if err := validation.ValidateUserID(req.Sender.UserID); err != nil {
			s.writeError(w, err)
			return
		}
		if err := validation.ValidateRole(req.Sender.Role); err != nil {
			s.writeError(w, err)
			return
		}
		if err := validation.ValidateRecipients(len(req.Recipients)); err != nil {
			s.writeError(w, err)
			return
		}

		participants := models.Participants{Sender: req.Sender.profile()}
		for _, rp := range req.Recipients {
			if err := validation.ValidateUserID(rp.UserID); err != nil {
				s.writeError(w, err)
				return
			}
			if err := validation.ValidateRole(rp.Role); err != nil {
				s.writeError(w, err)
				return
			}
			participants.Recipients = append(participants.Recipients, rp.profile())
		}

		result, err := s.pipeline.SubmitMessage(r.Context(), req.Content, participants)
		if err != nil {
			if apperrors.GetCode(err) == apperrors.ErrCodeConsentDenied {
				s.registry.IncrementCounter(metrics.MetricMessagesDenied, nil, "Messages rejected for missing consent")
			}
			s.writeError(w, err)
			return
		}

		s.registry.IncrementCounter(metrics.MetricMessagesSubmitted, nil, "Messages accepted by the pipeline")
		s.writeJSON(w, http.StatusCreated, result)
	}
}

func (s *Server) handleListQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := database.ModerationQueueFilter{
			Status:   models.ModerationStatus(r.URL.Query().Get("status")),
			Priority: models.ModerationPriority(r.URL.Query().Get("priority")),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "unknown status filter"))
			return
		}
		if filter.Priority != "" && !filter.Priority.Valid() {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "unknown priority filter"))
			return
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			if _, err := fmt.Sscanf(limit, "%d", &filter.Limit); err != nil {
				s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "limit must be an integer"))
				return
			}
		}

		entries, err := s.queue.List(r.Context(), filter)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if entries == nil {
			entries = []models.ModerationQueueEntry{}
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.queue.Stats(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleChanges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := r.URL.Query().Get("since")
		if since == "" {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "since query parameter is required"))
			return
		}
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "since must be RFC3339"))
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"hasNew": s.queue.HasNewSince(t)})
	}
}

func (s *Server) handleGetEntry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := mux.Vars(r)["id"]
		if err := validation.ValidateEntryID(entryID); err != nil {
			s.writeError(w, err)
			return
		}

		entry, err := s.queue.Get(r.Context(), entryID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, entry)
	}
}

type moderateRequest struct {
	ModeratorID string                  `json:"moderatorId"`
	Action      models.ModerationAction `json:"action"`
	Notes       *string                 `json:"notes,omitempty"`
	Version     int64                   `json:"version"`
}

func (s *Server) handleModerate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID := mux.Vars(r)["id"]
		if err := validation.ValidateEntryID(entryID); err != nil {
			s.writeError(w, err)
			return
		}

		var req moderateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "malformed request body"))
			return
		}
		if err := validation.ValidateUserID(req.ModeratorID); err != nil {
			s.writeError(w, err)
			return
		}
		if !req.Action.Valid() {
			s.writeError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "unknown moderation action"))
			return
		}
		if req.Notes != nil {
			if err := validation.ValidateResolutionNotes(*req.Notes); err != nil {
				s.writeError(w, err)
				return
			}
		}

		entry, err := s.queue.Moderate(r.Context(), entryID, req.ModeratorID, req.Action, req.Notes, req.Version)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.registry.IncrementCounter(metrics.MetricModerationDecisions,
			map[string]string{"action": string(req.Action)}, "Moderator actions applied")
		s.writeJSON(w, http.StatusOK, entry)
	}
}

type queueUpdate struct {
	ChangedAt time.Time `json:"changedAt"`
}

// handleUpdates streams a signal whenever the moderation queue changes.
// Clients refetch the queue on each signal; no entry data crosses the
// socket.
func (s *Server) handleUpdates() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Websocket accept failed")
			return
		}
		defer conn.CloseNow()

		ch, cancel := s.queue.Subscribe()
		defer cancel()

		// The feed is write-only. CloseRead keeps control frames serviced
		// and cancels the context when the client goes away.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
				return
			case <-ch:
				if err := wsjson.Write(ctx, conn, queueUpdate{ChangedAt: time.Now().UTC()}); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"version":   Version,
			"uptime_ms": time.Since(s.started).Milliseconds(),
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Only moderation
// conflicts and lookups surface structured failures to clients; internal
// details stay in the logs.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidInput, apperrors.ErrCodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.ErrCodeModerationNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeModerationConflict:
		status = http.StatusConflict
	case apperrors.ErrCodeConsentDenied:
		status = http.StatusForbidden
	case apperrors.ErrCodeConsentLookupFailed:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		s.logger.WithError(err).Error("Request failed")
	}

	s.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    apperrors.GetCode(err),
			"message": apperrors.GetUserMessage(err),
		},
	})
}
