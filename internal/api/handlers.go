package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/parley/internal/knowledge"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/resilience"
	"github.com/MrWong99/parley/internal/scene"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/world"
)

// errBadRequest marks client input that could not be decoded.
var errBadRequest = errors.New("api: bad request")

// ─── world ──────────────────────────────────────────────────────────────────

func (s *Server) handleNPC(w http.ResponseWriter, r *http.Request) {
	npc, err := s.deps.World.NPC(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, npc)
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	sc, err := s.deps.World.Scene(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// ─── chat ───────────────────────────────────────────────────────────────────

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req scene.ChatRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	resp, err := s.deps.Chat.Chat(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── conversations and memory ───────────────────────────────────────────────

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	turns, err := s.deps.Conversations.History(r.Context(), r.PathValue("player"), r.PathValue("npc"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if turns == nil {
		turns = []session.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Memories.GetMemory(r.Context(), r.PathValue("player"), r.PathValue("npc"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleAddMemory accepts a single record or an array of records.
func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decode(w, r, &raw); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var records []session.MemoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		var one session.MemoryRecord
		if err := json.Unmarshal(raw, &one); err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: memory record: %w", errBadRequest, err))
			return
		}
		records = []session.MemoryRecord{one}
	}
	if len(records) == 0 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: no memory records", errBadRequest))
		return
	}

	all, err := s.deps.Memories.AddMemory(r.Context(), r.PathValue("player"), r.PathValue("npc"), records...)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// handleSummarise responds 204 when the log has nothing new since the last
// summary.
func (s *Server) handleSummarise(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Summariser.ConsolidatePair(r.Context(), r.PathValue("player"), r.PathValue("npc"))
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ─── knowledge ──────────────────────────────────────────────────────────────

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req knowledge.SearchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	results, err := s.deps.Knowledge.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	if results == nil {
		results = []knowledge.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// ─── helpers ────────────────────────────────────────────────────────────────

// statusFor maps an error chain to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, scene.ErrInvalidRequest),
		errors.Is(err, knowledge.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, scene.ErrSceneNotFound),
		errors.Is(err, scene.ErrNPCNotFound),
		errors.Is(err, world.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scene.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, resilience.ErrAllFailed),
		errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	observe.Logger(r.Context()).Log(r.Context(), levelFor(status), "request failed",
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}
