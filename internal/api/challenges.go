package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"example.com/challengeengine/internal/auth"
	"example.com/challengeengine/internal/domain"
)

func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	var req CreateChallengeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	challenge, err := h.challenges.CreateChallenge(r.Context(), req.toInput(claims.Subject))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChallengeView(*challenge, claims.Subject, h.now()))
}

// getChallenge hides non-public challenges from callers who have not joined.
func (h *Handler) getChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	challenge, err := h.challenges.GetChallenge(r.Context(), chi.URLParam(r, "challengeID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if challenge.Visibility != domain.VisibilityPublic && challenge.ProgressFor(claims.Subject) == nil {
		writeError(w, http.StatusNotFound, "not_found", "challenge not found")
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(*challenge, claims.Subject, h.now()))
}

func (h *Handler) deactivateChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	challenge, err := h.challenges.DeactivateChallenge(r.Context(), claims.Subject, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeView(*challenge, claims.Subject, h.now()))
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	record, joined, err := h.challenges.Join(r.Context(), chi.URLParam(r, "challengeID"), claims.Subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	writeJSON(w, status, JoinResponse{Progress: toProgressView(record), Joined: joined})
}

func (h *Handler) updateProgress(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeChallengesWrite)
	if !ok {
		return
	}

	var req UpdateProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.challenges.UpdateProgress(r.Context(), claims.Subject, chi.URLParam(r, "challengeID"), req.ActivityID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgressResultViews([]domain.ProgressResult{result})[0])
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorize(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite); !ok {
		return
	}

	challengeID := chi.URLParam(r, "challengeID")
	entries, err := h.challenges.Leaderboard(r.Context(), challengeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := LeaderboardResponse{ChallengeID: challengeID, Entries: make([]LeaderboardEntryView, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, LeaderboardEntryView{
			Rank:           e.Rank,
			UserID:         e.UserID,
			CurrentValue:   e.CurrentValue,
			Completed:      e.Completed,
			CompletionDate: e.CompletionDate,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activeChallenges(w http.ResponseWriter, r *http.Request) {
	h.listChallenges(w, r, h.challenges.ActiveUserChallenges)
}

func (h *Handler) availableChallenges(w http.ResponseWriter, r *http.Request) {
	h.listChallenges(w, r, h.challenges.AvailableChallenges)
}

type challengeLister func(ctx context.Context, userID string, page, pageSize int) ([]domain.Challenge, error)

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request, list challengeLister) {
	claims, ok := authorize(w, r, auth.ScopeChallengesRead, auth.ScopeChallengesWrite)
	if !ok {
		return
	}
	page, pageSize, ok := parsePage(w, r)
	if !ok {
		return
	}

	challenges, err := list(r.Context(), claims.Subject, page, pageSize)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListChallengesResponse{
		Items:    toChallengeViews(challenges, claims.Subject, h.now()),
		Page:     page,
		PageSize: pageSize,
	})
}
