package handlers

import (
	"fmt"
	"net/http"

	"github.com/recleague/tracker/engine"
	"github.com/recleague/tracker/services"
)

type RoundHandler struct {
	roundService services.RoundService
}

func NewRoundHandler(roundService services.RoundService) *RoundHandler {
	return &RoundHandler{roundService: roundService}
}

func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		SquadCount int    `json:"squad_count"`
		Strategy   string `json:"auto_assign_strategy,omitempty"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var strategy engine.Strategy
	if input.Strategy != "" {
		strategy = engine.Strategy(input.Strategy)
		if strategy != engine.StrategyRandom && strategy != engine.StrategyBalanced {
			badRequestResponse(w, r, fmt.Errorf("unknown strategy %q", input.Strategy))
			return
		}
	}

	round, err := h.roundService.CreateRound(r.Context(), sessionID, input.SquadCount)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	// Optionally seed the fresh squads in the same request.
	if strategy != "" {
		result, err := h.roundService.AutoAssign(r.Context(), round.ID, strategy, engine.ScopeOverwrite)
		if err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
		if err := writeJSON(w, http.StatusCreated, jsonResponse{"round": result.Round, "allocation": result}, nil); err != nil {
			serverErrorResponse(w, r, err)
		}
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.roundService.GetRound(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Strategy string `json:"strategy"`
		Scope    string `json:"scope"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	strategy := engine.Strategy(input.Strategy)
	if strategy != engine.StrategyRandom && strategy != engine.StrategyBalanced {
		badRequestResponse(w, r, fmt.Errorf("unknown strategy %q", input.Strategy))
		return
	}
	scope := engine.Scope(input.Scope)
	if scope == "" {
		scope = engine.ScopeUnassigned
	}
	if scope != engine.ScopeUnassigned && scope != engine.ScopeOverwrite {
		badRequestResponse(w, r, fmt.Errorf("unknown scope %q", input.Scope))
		return
	}

	result, err := h.roundService.AutoAssign(r.Context(), roundID, strategy, scope)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"allocation": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) ToggleAssignment(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	squadID, err := getIDFromURL(r, "squadID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		AttendeeID int `json:"attendee_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	round, err := h.roundService.ToggleAssignment(r.Context(), roundID, squadID, input.AttendeeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) EditRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Squads []services.SquadEdit `json:"squads"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.roundService.EditRound(r.Context(), roundID, input.Squads)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"allocation": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) DeleteRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.roundService.DeleteRound(r.Context(), roundID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddPlayersToPool admits late arrivals to a session whose rounds already
// exist; the body must carry a squad choice per round for every player.
func (h *RoundHandler) AddPlayersToPool(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Players []services.PoolAddition `json:"players"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.roundService.AddPlayersToPool(r.Context(), sessionID, input.Players)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
