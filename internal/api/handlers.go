package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mapsmith/mapsmith/internal/chain"
	"github.com/mapsmith/mapsmith/internal/engine"
	"github.com/mapsmith/mapsmith/internal/mapping"
	"github.com/mapsmith/mapsmith/internal/script"
	"github.com/mapsmith/mapsmith/internal/state"
	"github.com/mapsmith/mapsmith/internal/store"
	"github.com/mapsmith/mapsmith/internal/ws"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body, answering 400 itself when it cannot.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// storeError maps store and engine errors to HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNotExecutable):
		errorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, script.ErrUnsupportedLanguage):
		errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleParseDSL(w http.ResponseWriter, r *http.Request) {
	var req DSLRequest
	if !decode(w, r, &req) {
		return
	}
	res := s.engine.ParseDSL(req.Text)
	resp := ParseResponse{Mappings: res.Mappings, Errors: res.Errors}
	if resp.Errors == nil {
		resp.Errors = []mapping.Diagnostic{}
	}
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateDSL(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !decode(w, r, &req) {
		return
	}
	jsonResponse(w, http.StatusOK, DSLResponse{Text: s.engine.GenerateDSL(req.Mappings)})
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.LoadMap(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

func (s *Server) handleSaveMap(w http.ResponseWriter, r *http.Request) {
	var m state.MapState
	if !decode(w, r, &m) {
		return
	}
	if m.Source == nil || m.Target == nil {
		errorResponse(w, http.StatusBadRequest, "map needs a source and a target tree")
		return
	}
	m.ID = r.PathValue("id")
	if err := s.engine.SaveMap(r.Context(), &m); err != nil {
		storeError(w, err)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastJSON(ws.MsgMapUpdated, map[string]string{"id": m.ID})
	}
	jsonResponse(w, http.StatusOK, m)
}

func (s *Server) handleGetMapDSL(w http.ResponseWriter, r *http.Request) {
	text, err := s.engine.MapToDSL(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, DSLResponse{Text: text})
}

// handleApplyMapDSL answers 422 with the diagnostics when the text does not
// parse; the stored map is then left as it was.
func (s *Server) handleApplyMapDSL(w http.ResponseWriter, r *http.Request) {
	var req DSLRequest
	if !decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	res, err := s.engine.ApplyDSLToMap(r.Context(), id, req.Text)
	if err != nil {
		storeError(w, err)
		return
	}
	if len(res.Errors) > 0 {
		jsonResponse(w, http.StatusUnprocessableEntity, res)
		return
	}
	if s.hub != nil {
		s.hub.BroadcastJSON(ws.MsgMapUpdated, map[string]string{"id": id})
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	lang := r.URL.Query().Get("language")
	if lang == "" {
		m, err := s.engine.LoadMap(ctx, id)
		if err != nil {
			storeError(w, err)
			return
		}
		lang = m.ScriptLanguage()
	}

	code, err := s.engine.GenerateScript(ctx, id, lang)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, ScriptResponse{Language: script.NormalizeLanguage(lang), Code: code})
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := s.engine.ListChains(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	if chains == nil {
		chains = []chain.MapChain{}
	}
	jsonResponse(w, http.StatusOK, chains)
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.LoadChain(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// handleSaveChain serves both POST /api/chains and PUT /api/chains/{id}.
func (s *Server) handleSaveChain(w http.ResponseWriter, r *http.Request) {
	var c chain.MapChain
	if !decode(w, r, &c) {
		return
	}
	if id := r.PathValue("id"); id != "" {
		c.ID = id
	}
	if err := s.engine.SaveChain(r.Context(), &c); err != nil {
		storeError(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	jsonResponse(w, status, c)
}

func (s *Server) handleCheckChain(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decode(w, r, &req) {
		return
	}
	jsonResponse(w, http.StatusOK, s.engine.CheckChain(req.Links))
}

// handleRunChain runs a stored chain to completion and replies with its
// report. Progress is broadcast to WebSocket clients as it happens.
func (s *Server) handleRunChain(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	var cb chain.Callbacks
	if s.hub != nil {
		cb = s.hub.ChainCallbacks(id)
	}
	rep, err := s.engine.RunChainByID(r.Context(), id, req.Input, cb)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, rep)
}

func (s *Server) handleCancelChain(w http.ResponseWriter, r *http.Request) {
	if !s.engine.CancelChain(r.PathValue("id")) {
		errorResponse(w, http.StatusNotFound, "chain is not running")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
