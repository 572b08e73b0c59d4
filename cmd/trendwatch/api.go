package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/trendwatch/pkg/auth"
	"github.com/dmitrymomot/trendwatch/pkg/event"
	"github.com/dmitrymomot/trendwatch/pkg/logger"
	"github.com/dmitrymomot/trendwatch/pkg/notification"
	"github.com/dmitrymomot/trendwatch/pkg/pipeline"
	"github.com/dmitrymomot/trendwatch/pkg/transport/sse"
)

type api struct {
	pipeline *pipeline.Pipeline
	notifs   notification.Store
	tokens   *auth.TokenService
	log      *slog.Logger
}

func newAPI(p *pipeline.Pipeline, notifs notification.Store, tokens *auth.TokenService, log *slog.Logger) *api {
	return &api{pipeline: p, notifs: notifs, tokens: tokens, log: log}
}

func (a *api) router(stream *sse.Handler, healthz []func(ctx context.Context) error) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealthz(healthz))

	r.Mount("/sse", stream.Routes())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/events", a.handleIngest)
		r.Get("/stats", a.handleStats)
		r.Get("/channels", a.handleChannels)

		r.Group(func(r chi.Router) {
			r.Use(a.requireUser)
			r.Get("/notifications", a.handleListNotifications)
			r.Get("/notifications/unread-count", a.handleUnreadCount)
			r.Post("/notifications/{id}/read", a.handleMarkRead)
			r.Post("/notifications/read-all", a.handleMarkAllRead)
			r.Delete("/notifications/{id}", a.handleDeleteNotification)
			r.Get("/preferences", a.handleGetPreferences)
			r.Put("/preferences", a.handleSetPreferences)
		})
	})

	return r
}

func (a *api) handleHealthz(probes []func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, probe := range probes {
			if err := probe(r.Context()); err != nil {
				a.log.Warn("health probe failed", logger.Error(err))
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleIngest accepts one analytics event and buffers it for the pipeline.
// 202 is deliberate: persistence is asynchronous.
func (a *api) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	if err := a.pipeline.Ingest(r.Context(), ev); err != nil {
		switch {
		case isValidationError(err):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			a.log.Error("ingest failed", logger.Error(err))
			respondError(w, http.StatusServiceUnavailable, "ingestion unavailable")
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func isValidationError(err error) bool {
	return errorIsAny(err,
		event.ErrUnknownType,
		event.ErrMissingSession,
		event.ErrMissingTimestamp,
	)
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.pipeline.Stats())
}

func (a *api) handleChannels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"channels": channelsHint})
}

type userKey struct{}

// requireUser resolves the acting user. With token auth configured the
// bearer token is mandatory; without it the user_id query parameter is
// accepted, which keeps local development friction-free.
func (a *api) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var userID string

		if a.tokens != nil {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			verified, err := a.tokens.Verify(r.Context(), token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			userID = verified
		} else {
			userID = r.URL.Query().Get("user_id")
			if userID == "" {
				respondError(w, http.StatusBadRequest, "user_id is required")
				return
			}
		}

		ctx := contextWithUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *api) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	opts := notification.ListOptions{
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
		IncludeRead: r.URL.Query().Get("include_read") == "true",
	}

	items, err := a.notifs.List(r.Context(), userID, opts)
	if err != nil {
		a.log.Error("list notifications failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if items == nil {
		items = []notification.Notification{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (a *api) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	count, err := a.notifs.CountUnread(r.Context(), userID)
	if err != nil {
		a.log.Error("unread count failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to count notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (a *api) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	ok, err := a.notifs.MarkRead(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.log.Error("mark read failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	updated, err := a.notifs.MarkAllRead(r.Context(), userID)
	if err != nil {
		a.log.Error("mark all read failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *api) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	ok, err := a.notifs.Delete(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		a.log.Error("delete notification failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)
	prefs, err := a.notifs.GetPreferences(r.Context(), userID)
	if err != nil {
		a.log.Error("get preferences failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"preferences": prefs})
}

func (a *api) handleSetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r)

	var prefs notification.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(w, http.StatusBadRequest, "malformed preferences payload")
		return
	}

	if err := a.notifs.SetPreferences(r.Context(), userID, prefs); err != nil {
		a.log.Error("set preferences failed", logger.UserID(userID), logger.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userKey{}).(string)
	return userID
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
