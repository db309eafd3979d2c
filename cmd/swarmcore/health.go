package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/swarmcore/pkg/swarmmetrics"
)

// healthServer exposes liveness, readiness and Prometheus metrics for a
// running orchestrator. Readiness reflects whether the distributor is
// currently alive rather than raft leadership; there is no consensus
// cluster here. Gateway reachability is not checked.
type healthServer struct {
	mux *http.ServeMux

	distributorAlive func(ctx context.Context) bool
}

func newHealthServer(distributorAlive func(ctx context.Context) bool) *healthServer {
	hs := &healthServer{mux: http.NewServeMux(), distributorAlive: distributorAlive}
	hs.mux.HandleFunc("/health", hs.healthHandler)
	hs.mux.HandleFunc("/ready", hs.readyHandler)
	hs.mux.Handle("/metrics", swarmmetrics.Handler())
	return hs
}

func (hs *healthServer) listenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type readyResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Message string            `json:"message,omitempty"`
}

func (hs *healthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "healthy", Timestamp: time.Now()})
}

func (hs *healthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if hs.distributorAlive(ctx) {
		checks["distributor"] = "alive"
	} else {
		checks["distributor"] = "unreachable"
		ready = false
	}

	resp := readyResponse{Checks: checks}
	w.Header().Set("Content-Type", "application/json")
	if ready {
		resp.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		resp.Status = "not ready"
		resp.Message = "distributor liveness check failing"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
