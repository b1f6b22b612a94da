// Package api exposes the HTTP surface of the challenge engine.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"example.com/challengeengine/internal/auth"
	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/logging"
	"example.com/challengeengine/internal/route"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities *domain.ActivityService
	challenges *domain.ChallengeService
	inline     bool
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithInlineEvaluation applies finished activities to challenges within the
// request instead of leaving it to the consumer.
func WithInlineEvaluation(enabled bool) Option {
	return func(h *Handler) { h.inline = enabled }
}

// WithClock overrides the clock used for remaining-time views.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler builds a Handler.
func NewHandler(activities *domain.ActivityService, challenges *domain.ChallengeService, opts ...Option) *Handler {
	h := &Handler{
		activities: activities,
		challenges: challenges,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logging.Component("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tracking", h.startTracking)
		r.Post("/tracking/{activityID}/samples", h.updateTracking)
		r.Post("/tracking/{activityID}/finish", h.finishTracking)

		r.Post("/activities", h.createActivity)
		r.Get("/activities/{activityID}", h.getActivity)
		r.Delete("/activities/{activityID}", h.deactivateActivity)
		r.Get("/feed", h.feed)
		r.Get("/users/{userID}/activities", h.userActivities)
		r.Get("/users/{userID}/stats", h.userStats)

		r.Post("/challenges", h.createChallenge)
		r.Get("/challenges/{challengeID}", h.getChallenge)
		r.Delete("/challenges/{challengeID}", h.deactivateChallenge)
		r.Post("/challenges/{challengeID}/join", h.joinChallenge)
		r.Post("/challenges/{challengeID}/progress", h.updateProgress)
		r.Get("/challenges/{challengeID}/leaderboard", h.leaderboard)
		r.Get("/me/challenges/active", h.activeChallenges)
		r.Get("/me/challenges/available", h.availableChallenges)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) startTracking(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req StartTrackingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.activities.StartTracking(r.Context(), domain.StartTrackingInput{
		UserID:      claims.Subject,
		Type:        domain.ActivityType(req.ActivityType),
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) updateTracking(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var sample route.Sample
	if !decodeBody(w, r, &sample) {
		return
	}

	activity, err := h.activities.UpdateTracking(r.Context(), claims.Subject, chi.URLParam(r, "activityID"), sample)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) finishTracking(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activity, err := h.activities.FinishTracking(r.Context(), claims.Subject, chi.URLParam(r, "activityID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.finished(r, activity))
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.activities.CreateActivity(r.Context(), domain.CreateActivityInput{
		UserID:      claims.Subject,
		Type:        domain.ActivityType(req.ActivityType),
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
		Route:       req.Route,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.finished(r, activity))
}

// finished builds the response for a newly Finished activity, evaluating it
// against the owner's challenges when inline evaluation is enabled.
func (h *Handler) finished(r *http.Request, activity *domain.Activity) FinishedActivityResponse {
	resp := FinishedActivityResponse{Activity: toActivityView(*activity)}
	if !h.inline {
		return resp
	}

	results, err := h.challenges.ApplyFinishedActivity(r.Context(), activity.ID)
	if err != nil {
		h.logger.Warn().Err(err).Str("activity_id", activity.ID).Msg("inline challenge evaluation incomplete")
	}
	resp.ChallengeProgress = toProgressResultViews(results)
	return resp
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activity, err := h.activities.GetActivity(r.Context(), chi.URLParam(r, "activityID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if activity.UserID != claims.Subject && (!activity.IsPublic || activity.Deactivated) {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deactivateActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activity, err := h.activities.DeactivateActivity(r.Context(), claims.Subject, chi.URLParam(r, "activityID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}
	page, pageSize, ok := parsePage(w, r)
	if !ok {
		return
	}

	activities, err := h.activities.Feed(r.Context(), page, pageSize)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(activities), Page: page, PageSize: pageSize})
}

// userActivities lists a user's activities. Other callers only see public ones.
func (h *Handler) userActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	page, pageSize, ok := parsePage(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	activities, err := h.activities.ListUserActivities(r.Context(), userID, page, pageSize)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if userID != claims.Subject {
		visible := activities[:0]
		for _, a := range activities {
			if a.IsPublic {
				visible = append(visible, a)
			}
		}
		activities = visible
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(activities), Page: page, PageSize: pageSize})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite); !ok {
		return
	}

	stats, err := h.activities.Stats(r.Context(), chi.URLParam(r, "userID"), domain.ActivityType(r.URL.Query().Get("activity_type")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsView{
		TotalDistanceKm:  stats.TotalDistance,
		TotalTimeSeconds: stats.TotalTime,
		TotalActivities:  stats.TotalActivities,
		AverageSpeedKmh:  stats.AverageSpeed,
	})
}
