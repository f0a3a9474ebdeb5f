// Package httpapi implements the HTTP control surface: start/stop/status
// for the active run, and a liveness probe, per spec.md §6.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/relaymesh/incidentforge/internal/apierr"
	"github.com/relaymesh/incidentforge/internal/repair"
	"github.com/relaymesh/incidentforge/internal/runstate"
	"github.com/relaymesh/incidentforge/internal/store"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

// Server wires the run controller to the HTTP routes spec.md §6 defines.
type Server struct {
	controller    *runstate.Controller
	st            store.Store
	allowedOrigin string
	mux           *http.ServeMux
}

// New builds a Server bound to a run controller, the store (for /healthz),
// and the configured CORS origin.
func New(controller *runstate.Controller, st store.Store, allowedOrigin string) *Server {
	s := &Server{controller: controller, st: st, allowedOrigin: allowedOrigin}

	mux := http.NewServeMux()
	mux.Handle("/status", Instrument(http.HandlerFunc(s.handleStatus), "GET /status"))
	mux.Handle("/start", Instrument(http.HandlerFunc(s.handleStart), "POST /start"))
	mux.Handle("/stop", Instrument(http.HandlerFunc(s.handleStop), "POST /stop"))
	mux.Handle("/healthz", Instrument(http.HandlerFunc(s.handleHealthz), "GET /healthz"))
	s.mux = mux

	return s
}

// Handler returns the composed http.Handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return s.withCORS(s.mux)
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusResponse is the {ok, producer, scheduler, persistedCount} shape
// spec.md §6 specifies for /status, /start, and /stop.
type statusResponse struct {
	OK             bool        `json:"ok"`
	RunID          string      `json:"runId,omitempty"`
	Producer       interface{} `json:"producer"`
	Scheduler      interface{} `json:"scheduler"`
	PersistedCount *int        `json:"persistedCount"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeSnapshot(w http.ResponseWriter, snap runstate.Snapshot) {
	writeJSON(w, http.StatusOK, statusResponse{
		OK:             true,
		RunID:          snap.RunID,
		Producer:       snap.Producer,
		Scheduler:      snap.Scheduler,
		PersistedCount: snap.PersistedCount,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apierr.IsInvalidArgument(err):
		status = http.StatusBadRequest
	case apierr.IsResource(err):
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{OK: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, s.controller.Snapshot(r.Context()))
}

// startRequestBody is the POST /start JSON body shape, per spec.md §6.
type startRequestBody struct {
	Rate           int      `json:"rate"`
	Batch          int      `json:"batch"`
	Shards         int      `json:"shards"`
	Spread         float64  `json:"spread"`
	Seed           *uint32  `json:"seed,omitempty"`
	Note           string   `json:"note,omitempty"`
	RepairsEnabled bool     `json:"repairsEnabled,omitempty"`
	RepairConfig   *repConf `json:"repairConfig,omitempty"`
}

// repConf is the optional repair-scheduler override body embedded in a
// start request.
type repConf struct {
	CadenceMs       int     `json:"cadenceMs,omitempty"`
	BudgetPerTick   int     `json:"budgetPerTick,omitempty"`
	RecentWindowSec int     `json:"recentWindowSec,omitempty"`
	DelayMedianSec  float64 `json:"delayMedianSec,omitempty"`
	DelayP95Sec     float64 `json:"delayP95Sec,omitempty"`
	DelayJitterSec  int     `json:"delayJitterSec,omitempty"`
	PFixProbability float64 `json:"pFixProbability,omitempty"`
	MaxDelaySec     int     `json:"maxDelaySec,omitempty"`
	Policy          string  `json:"policy,omitempty"`
	Version         string  `json:"version,omitempty"`
}

func (rc *repConf) toConfig() repair.Config {
	if rc == nil {
		return repair.Config{}
	}

	return repair.Config{
		CadenceMs:       rc.CadenceMs,
		BudgetPerTick:   rc.BudgetPerTick,
		RecentWindowSec: rc.RecentWindowSec,
		DelayMedianSec:  rc.DelayMedianSec,
		DelayP95Sec:     rc.DelayP95Sec,
		DelayJitterSec:  rc.DelayJitterSec,
		PFixProbability: rc.PFixProbability,
		MaxDelaySec:     rc.MaxDelaySec,
		Policy:          rc.Policy,
		Version:         rc.Version,
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierr.InvalidArgument("httpapi: method not allowed"))
		return
	}

	var body startRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apierr.InvalidArgument("httpapi: malformed request body"))
		return
	}

	snap, err := s.controller.Start(r.Context(), runstate.StartRequest{
		Rate:           body.Rate,
		Batch:          body.Batch,
		Shards:         body.Shards,
		SpreadFactor:   body.Spread,
		Seed:           body.Seed,
		Note:           body.Note,
		RepairsEnabled: body.RepairsEnabled,
		RepairConfig:   body.RepairConfig.toConfig(),
	})
	if err != nil {
		telemetry.RecordError(r.Context(), err)
		writeError(w, err)
		return
	}

	writeSnapshot(w, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apierr.InvalidArgument("httpapi: method not allowed"))
		return
	}

	snap, err := s.controller.Stop(r.Context())
	if err != nil {
		telemetry.RecordError(r.Context(), err)
		writeError(w, err)
		return
	}

	writeSnapshot(w, snap)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{OK: false, Error: "store unreachable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
