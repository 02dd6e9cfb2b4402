/*
Copyright 2025 The Fnscale Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package debugapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/fnscale/fnscale/pkg/controller/podautoscaler"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/config"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/history"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/monitor"
	"github.com/fnscale/fnscale/pkg/controller/podautoscaler/promql"
	"github.com/fnscale/fnscale/pkg/metrics"
)

const simulationKey = "simulation"

// EvalRequest is the body of POST /promql/eval.
type EvalRequest struct {
	Query          string `json:"query"`
	NowUnixSeconds *int64 `json:"nowUnixSeconds,omitempty"`
}

// EvalResponse carries a nil Value when the snapshot holds no data.
type EvalResponse struct {
	Value          *float64 `json:"value"`
	NowUnixSeconds int64    `json:"nowUnixSeconds"`
}

// SimulateRequest is the body of POST /autoscaler/simulate.
type SimulateRequest struct {
	Config          json.RawMessage `json:"config"`
	CurrentReplicas int             `json:"currentReplicas"`
	MinReplicas     *int            `json:"minReplicas,omitempty"`
	NowUnixSeconds  *int64          `json:"nowUnixSeconds,omitempty"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Position *int   `json:"position,omitempty"`
}

type httpServer struct {
	evaluator *promql.Evaluator
	store     *metrics.SnapshotStore
	extractor *config.ConfigExtractor
	now       func() time.Time
}

// NewRouter returns the debug routes served on top of the live snapshot store.
func NewRouter(store *metrics.SnapshotStore, evaluator *promql.Evaluator, extractor *config.ConfigExtractor) *mux.Router {
	server := &httpServer{
		evaluator: evaluator,
		store:     store,
		extractor: extractor,
		now:       time.Now,
	}
	r := mux.NewRouter()
	r.HandleFunc("/promql/eval", server.evalQuery).Methods("POST")
	r.HandleFunc("/debug/store", server.storeStats).Methods("GET")
	r.HandleFunc("/autoscaler/simulate", server.simulate).Methods("POST")

	// Health related handlers
	r.HandleFunc("/healthz", server.healthz).Methods("GET")
	return r
}

func (s *httpServer) evalQuery(w http.ResponseWriter, r *http.Request) {
	var req EvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing required parameter: query"))
		return
	}

	now := s.resolveNow(req.NowUnixSeconds)
	value, err := s.evaluator.Evaluate(req.Query, now)
	if err != nil {
		klog.V(4).InfoS("Rejected debug query", "query", req.Query, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := EvalResponse{NowUnixSeconds: now}
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		resp.Value = &value
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *httpServer) storeStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// simulate runs the autoscaler against the live snapshot with a throwaway history,
// so real stabilization windows are never affected.
func (s *httpServer) simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if len(req.Config) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("missing required parameter: config"))
		return
	}
	cfg, err := s.extractor.Parse(string(req.Config))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	minReplicas := s.extractor.DefaultMinReplicas
	if req.MinReplicas != nil {
		minReplicas = *req.MinReplicas
	}
	if cfg.ReplicaMax != nil {
		if err := s.extractor.ValidateScalingConstraints(minReplicas, *cfg.ReplicaMax); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	autoscaler := podautoscaler.NewAutoScaler(s.evaluator, history.NewInMemoryStore(0)).WithMonitor(monitor.NewNoop())
	decision := autoscaler.ComputeWithDetails(simulationKey, cfg, req.CurrentReplicas, minReplicas, cfg.ReplicaMax, s.resolveNow(req.NowUnixSeconds))
	writeJSON(w, http.StatusOK, decision)
}

func (s *httpServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// resolveNow prefers the requested time, then the latest collected timestamp, then the wall clock.
func (s *httpServer) resolveNow(requested *int64) int64 {
	if requested != nil {
		return *requested
	}
	if latest, ok := s.store.Snapshot().Latest(); ok {
		return latest
	}
	return s.now().Unix()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		klog.ErrorS(err, "Failed to encode debug response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var parseErr *promql.ParseError
	if errors.As(err, &parseErr) {
		pos := parseErr.Pos
		resp.Position = &pos
	}
	writeJSON(w, status, resp)
}
