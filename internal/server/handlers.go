package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/prompt"
	"github.com/cortexlab/cortex/internal/runtime"
)

func healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) status(c *gin.Context) {
	respondOK(c, gin.H{
		"state": s.rt.State().String(),
		"model": s.Model(),
	})
}

func (s *Server) tools(c *gin.Context) {
	grade := c.Query("class")
	respondOK(c, gin.H{
		"class": grade,
		"tools": prompt.ToolsFor(grade),
	})
}

func (s *Server) listPacks(c *gin.Context) {
	s.respondPacks(c, false)
}

func (s *Server) refreshPacks(c *gin.Context) {
	s.respondPacks(c, true)
}

func (s *Server) respondPacks(c *gin.Context, force bool) {
	packs, err := s.packs.Discover(c.Request.Context(), force)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "pack_discovery", err)
		return
	}
	if packs == nil {
		packs = []model.KnowledgePack{}
	}
	respondOK(c, gin.H{"packs": packs})
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Input   string                 `json:"input"`
	Grade   string                 `json:"class"`
	Subject string                 `json:"subject"`
	Tool    string                 `json:"tool"`
	Persona string                 `json:"persona"`
	History []model.Turn           `json:"history"`
	Params  model.GenerationParams `json:"params"`
}

func (r QueryRequest) options(modelName string) runtime.Options {
	return runtime.Options{
		Grade:         r.Grade,
		Subject:       r.Subject,
		Tool:          prompt.Tool(r.Tool),
		ModelName:     modelName,
		CustomPersona: r.Persona,
		History:       r.History,
		Params:        r.Params,
	}
}

func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Input == "" {
		respondError(c, http.StatusBadRequest, "bad_request", errors.New("input is required"))
		return
	}
	for _, t := range req.History {
		if !model.ValidRoles[t.Role] {
			respondError(c, http.StatusBadRequest, "bad_request", errors.New("history role must be user or assistant"))
			return
		}
	}

	opts := req.options(s.Model())
	if c.Query("stream") != "" && c.Query("stream") != "0" {
		s.streamQuery(c, req.Input, opts)
		return
	}

	res, err := s.rt.ProcessQuery(c.Request.Context(), req.Input, opts)
	if err != nil {
		status, code := admissionError(err)
		respondError(c, status, code, err)
		return
	}
	respondOK(c, res)
}

func admissionError(err error) (int, string) {
	if errors.Is(err, runtime.ErrBusy) {
		return http.StatusTooManyRequests, "busy"
	}
	return http.StatusServiceUnavailable, "cancelled"
}

func (s *Server) stop(c *gin.Context) {
	s.rt.Stop()
	respondOK(c, gin.H{"state": s.rt.State().String()})
}

type loadRequest struct {
	Model string `json:"model"`
}

func (s *Server) loadModel(c *gin.Context) {
	var req loadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "bad_request", err)
			return
		}
	}
	name := req.Model
	if name == "" {
		name = s.Model()
	}
	ok, err := s.engine.Load(c.Request.Context(), name)
	if err != nil {
		respondError(c, http.StatusBadGateway, "engine", err)
		return
	}
	if ok {
		s.setModel(name)
	}
	respondOK(c, gin.H{"model": name, "loaded": ok})
}

func (s *Server) unloadModel(c *gin.Context) {
	if err := s.engine.Unload(c.Request.Context()); err != nil {
		respondError(c, http.StatusBadGateway, "engine", err)
		return
	}
	respondOK(c, gin.H{"loaded": false})
}
