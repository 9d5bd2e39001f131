// Package apiserver exposes the engine's status and control surface over
// HTTP: a JSON status endpoint for telemetry scraping plus tune/start/stop
// control routes on a gorilla/mux router.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/ubersdr-ingest/internal/engine"
)

// Server wraps an *http.Server around an *engine.Engine, exposing status,
// control, and Prometheus scrape routes.
type Server struct {
	eng    *engine.Engine
	router *mux.Router
	server *http.Server
	logger *log.Logger
}

// New builds a Server listening on addr (e.g. ":8090").
func New(eng *engine.Engine, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	router := mux.NewRouter()
	s := &Server{
		eng:    eng,
		router: router,
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/receivers/{id}/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/receivers/{id}/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/receivers/{id}/tune", s.handleTune).Methods(http.MethodPost)
}

// ListenAndServe blocks serving HTTP until the server is stopped.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("apiserver: listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.eng.ReadStatus())
}

type startRequest struct {
	Frequency uint64 `json:"frequency"`
	Mode      string `json:"mode"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := receiverID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.eng.StartReceiver(id, req.Frequency, req.Mode); err != nil {
		respondError(w, statusForEngineErr(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := receiverID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.eng.StopReceiver(id); err != nil {
		respondError(w, statusForEngineErr(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tuneRequest struct {
	Frequency uint64 `json:"frequency"`
}

func (s *Server) handleTune(w http.ResponseWriter, r *http.Request) {
	id, err := receiverID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req tuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.eng.SetFrequency(id, req.Frequency); err != nil {
		respondError(w, statusForEngineErr(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func receiverID(r *http.Request) (int, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid receiver id %q", raw)
	}
	return id, nil
}

func statusForEngineErr(err error) int {
	if _, ok := err.(*engine.ErrConfig); ok {
		return http.StatusBadRequest
	}
	return http.StatusConflict
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
