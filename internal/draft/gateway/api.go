package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// API is the JSON HTTP facade over the draft engine. It owns no draft
// semantics; it decodes requests, delegates, and maps engine error kinds to
// status codes.
type API struct {
	engine *engine.Engine
}

// NewAPI creates the HTTP facade.
func NewAPI(e *engine.Engine) *API {
	return &API{engine: e}
}

// RegisterRoutes registers the draft API routes with an HTTP mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/drafts", a.handleCreateDraft)
	mux.HandleFunc("GET /api/drafts/{id}", a.handleGetDraft)
	mux.HandleFunc("DELETE /api/drafts/{id}", a.handleDeleteDraft)
	mux.HandleFunc("POST /api/drafts/{id}/start", a.handleStartDraft)
	mux.HandleFunc("POST /api/drafts/{id}/cancel", a.handleCancelDraft)
	mux.HandleFunc("GET /api/drafts/{id}/picks", a.handleListPicks)
	mux.HandleFunc("POST /api/drafts/{id}/picks", a.handleAssignPick)
	mux.HandleFunc("GET /api/drafts/{id}/snapshot", a.handleSnapshot)
	mux.HandleFunc("GET /api/drafts/{id}/teams/{teamID}/roster", a.handleTeamRoster)
	mux.HandleFunc("GET /api/drafts/{id}/teams/{teamID}/recommendations", a.handleRecommendations)
}

func (a *API) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	var req engine.CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	draft, err := a.engine.CreateDraft(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, draft)
}

func (a *API) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	draft, err := a.engine.GetDraft(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (a *API) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := a.engine.DeleteDraft(r.Context(), draftID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStartDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	draft, err := a.engine.StartDraft(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (a *API) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	draft, err := a.engine.CancelDraft(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (a *API) handleListPicks(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	picks, err := a.engine.ListPicks(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"picks": picks})
}

func (a *API) handleAssignPick(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var body struct {
		PickID   uuid.UUID `json:"pick_id"`
		PlayerID uuid.UUID `json:"player_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pick, err := a.engine.AssignPick(r.Context(), engine.AssignPickRequest{
		DraftID:  draftID,
		PickID:   body.PickID,
		PlayerID: body.PlayerID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pick)
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	snap, err := a.engine.Snapshot(r.Context(), draftID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleTeamRoster(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	teamID, ok := pathUUID(w, r, "teamID")
	if !ok {
		return
	}
	roster, err := a.engine.TeamRoster(r.Context(), draftID, teamID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roster": roster})
}

func (a *API) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	draftID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	teamID, ok := pathUUID(w, r, "teamID")
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	recs, err := a.engine.Recommend(r.Context(), draftID, teamID, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine error kinds onto HTTP status codes. ErrBusy
// maps to 429 so clients know retrying with backoff is appropriate.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState),
		errors.Is(err, engine.ErrDraftNotActive),
		errors.Is(err, engine.ErrPickNotCurrent),
		errors.Is(err, engine.ErrPickAlreadyAssigned),
		errors.Is(err, engine.ErrCandidateUnavailable):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrCandidateIneligible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrBusy):
		status = http.StatusTooManyRequests
	case errors.Is(err, engine.ErrCollaboratorUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}
