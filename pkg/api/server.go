package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/grovehq/grove/pkg/garden"
	"github.com/grovehq/grove/pkg/log"
	"github.com/grovehq/grove/pkg/metrics"
	"github.com/grovehq/grove/pkg/router"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

// Server exposes the garden federation over HTTP: garden CRUD, sync
// triggers, and the ingress endpoints peers deliver operations and
// events to.
type Server struct {
	svc    *garden.Service
	rtr    router.Router
	http   *http.Server
	logger zerolog.Logger
}

// NewServer creates a new API server
func NewServer(svc *garden.Service, rtr router.Router) *Server {
	return &Server{
		svc:    svc,
		rtr:    rtr,
		logger: log.WithComponent("api"),
	}
}

// Routes builds the HTTP route table.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/gardens", s.handleListGardens).Methods(http.MethodGet)
	api.HandleFunc("/gardens", s.handleCreateGarden).Methods(http.MethodPost)
	api.HandleFunc("/gardens/{name}", s.handleGetGarden).Methods(http.MethodGet)
	api.HandleFunc("/gardens/{name}", s.handlePatchGarden).Methods(http.MethodPatch)
	api.HandleFunc("/gardens/{name}", s.handleDeleteGarden).Methods(http.MethodDelete)
	api.HandleFunc("/gardens/{name}/systems", s.handleAddSystem).Methods(http.MethodPost)
	api.HandleFunc("/gardens/{name}/sync", s.handleSyncGarden).Methods(http.MethodPost)
	api.HandleFunc("/sync", s.handleSyncAll).Methods(http.MethodPost)
	api.HandleFunc("/operations", s.handleOperation).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvent).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return r
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleListGardens(w http.ResponseWriter, r *http.Request) {
	gardens, err := s.svc.List(true)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, gardens)
}

func (s *Server) handleGetGarden(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.Get(mux.Vars(r)["name"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, g)
}

func (s *Server) handleCreateGarden(w http.ResponseWriter, r *http.Request) {
	var g types.Garden
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("invalid garden payload"))
		return
	}

	created, err := s.svc.Create(&g)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, created)
}

// patchRequest is either a status update or a connection config update.
type patchRequest struct {
	Status           types.GardenStatus     `json:"status,omitempty"`
	ConnectionType   types.ConnectionType   `json:"connection_type,omitempty"`
	ConnectionParams types.ConnectionParams `json:"connection_params,omitempty"`
}

func (s *Server) handlePatchGarden(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("invalid patch payload"))
		return
	}

	var (
		updated *types.Garden
		err     error
	)
	switch {
	case req.Status != "":
		updated, err = s.svc.UpdateStatus(name, req.Status)
	case req.ConnectionType != "" || req.ConnectionParams != nil:
		updated, err = s.svc.UpdateConfig(&types.Garden{
			Name:             name,
			ConnectionType:   req.ConnectionType,
			ConnectionParams: req.ConnectionParams,
		})
	default:
		s.respondJSON(w, http.StatusBadRequest, errorBody("nothing to update"))
		return
	}
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteGarden(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Remove(mux.Vars(r)["name"]); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddSystem(w http.ResponseWriter, r *http.Request) {
	var sys types.SystemRef
	if err := json.NewDecoder(r.Body).Decode(&sys); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("invalid system payload"))
		return
	}

	updated, err := s.svc.AddSystem(&sys, mux.Vars(r)["name"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSyncGarden(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	err := s.rtr.Route(r.Context(), &types.Operation{
		Type:         types.OperationGardenSync,
		TargetGarden: name,
		Args:         map[string]any{"sync_target": name},
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Sync(r.Context(), ""); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	var op types.Operation
	if err := json.NewDecoder(r.Body).Decode(&op); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("invalid operation payload"))
		return
	}

	if err := s.rtr.Route(r.Context(), &op); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev types.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorBody("invalid event payload"))
		return
	}

	if err := s.svc.HandleEvent(&ev); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, garden.ErrUnknownGarden),
		errors.Is(err, router.ErrUnknownGarden):
		s.respondJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, router.ErrRoutingRequest):
		s.respondJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		s.respondJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
