package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/gameserver"
)

type addBotRequest struct {
	Name string `json:"name"`
}

type addBotResponse struct {
	ID   entity.ID `json:"id"`
	Name string    `json:"name"`
}

type messagesResponse struct {
	Entries []messages.Entry `json:"entries"`
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := h.game.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"tick":     snap.Tick,
		"entities": len(snap.Entities),
	})
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.game.Snapshot())
}

// handleGetMessages returns the message log, or only the entries after
// ?since=<seq>.
func (h *routerHandlers) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	entries := h.log.All()
	if raw := r.URL.Query().Get("since"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, "since must be a sequence number", http.StatusBadRequest)
			return
		}
		entries = h.log.Since(seq)
	}
	if entries == nil {
		entries = []messages.Entry{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Entries: entries})
}

func (h *routerHandlers) handleAddBot(w http.ResponseWriter, r *http.Request) {
	var req addBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	var id entity.ID
	err := h.do(r.Context(), func(sim *arena.Simulation) error {
		var err error
		id, err = sim.AddBot(req.Name)
		return err
	})
	switch {
	case errors.Is(err, entity.ErrEmptyName):
		writeError(w, "name is required", http.StatusBadRequest)
	case errors.Is(err, entity.ErrDuplicateName):
		writeError(w, "name already in use", http.StatusConflict)
	case err != nil:
		h.failed(w, "adding bot", err)
	default:
		writeJSON(w, http.StatusCreated, addBotResponse{ID: id, Name: req.Name})
	}
}

func (h *routerHandlers) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	removed := false
	if err := h.do(r.Context(), func(sim *arena.Simulation) error {
		removed = sim.RemoveEntity(name)
		return nil
	}); err != nil {
		h.failed(w, "removing entity", err)
		return
	}
	if !removed {
		writeError(w, "no such entity", http.StatusNotFound)
		return
	}
	h.log.Add(name+" was removed from the arena", messages.Info)
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.do(r.Context(), func(sim *arena.Simulation) error {
		sim.ResetSimulation()
		return nil
	}); err != nil {
		h.failed(w, "resetting simulation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleGenerateMap(w http.ResponseWriter, r *http.Request) {
	obstacles := 0
	if err := h.do(r.Context(), func(sim *arena.Simulation) error {
		sim.GenerateMap()
		obstacles = sim.Obstacles().Len()
		return nil
	}); err != nil {
		h.failed(w, "generating map", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"obstacles": obstacles})
}

func (h *routerHandlers) do(ctx context.Context, fn func(*arena.Simulation) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.game.Do(ctx, fn)
}

// failed maps loop errors to 503 and anything else to 500.
func (h *routerHandlers) failed(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, gameserver.ErrStopped) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Error(action, zap.Error(err))
	writeError(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
