// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api implements the public-facing HTTP server for the correlogram
// service. It accepts spike trains, triggers computations against the core
// store, and serves stored results and unit-subset views.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ccg"
	"ccg/internal/analyzer/core"
	"ccg/internal/analyzer/persistence"
	"ccg/internal/analyzer/telemetry"
)

// maxComputeBody bounds the request body for /compute. Large recordings
// should be split into multiple named computations.
const maxComputeBody = 256 << 20

// Server handles the HTTP requests for the correlogram service.
type Server struct {
	store  *core.Store
	logger *zap.Logger
}

// NewServer creates and configures a new API server around a result store.
func NewServer(store *core.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger}
}

// RegisterRoutes sets up the HTTP routes for the server on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/compute", s.handleCompute)
	mux.HandleFunc("/correlograms", s.handleGet)
	mux.HandleFunc("/correlograms/select", s.handleSelect)
	mux.HandleFunc("/healthz", s.handleHealth)
}

// computeRequest is the JSON body accepted by POST /compute.
type computeRequest struct {
	Name              string        `json:"name"`
	SamplingFrequency float64       `json:"sampling_frequency"`
	NumUnits          int           `json:"num_units"`
	UnitIDs           []string      `json:"unit_ids,omitempty"`
	Segments          [][]ccg.Spike `json:"segments"`
	WindowMS          float64       `json:"window_ms"`
	BinMS             float64       `json:"bin_ms"`
	Method            string        `json:"method"`
	Force             bool          `json:"force,omitempty"`
}

// computeResponse acknowledges a stored computation without echoing counts.
type computeResponse struct {
	Name     string `json:"name"`
	Version  int64  `json:"version"`
	Strategy string `json:"strategy"`
	FellBack bool   `json:"fell_back"`
	NumUnits int    `json:"num_units"`
	NumBins  int    `json:"num_bins"`
	Total    int64  `json:"total_pairs"`
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req computeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxComputeBody))
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.store.Compute(core.ComputeRequest{
		Name:              req.Name,
		SamplingFrequency: req.SamplingFrequency,
		NumUnits:          req.NumUnits,
		UnitIDs:           req.UnitIDs,
		Segments:          req.Segments,
		WindowMS:          req.WindowMS,
		BinMS:             req.BinMS,
		Method:            req.Method,
		Force:             req.Force,
	})
	if err != nil {
		s.logger.Warn("compute rejected", zap.String("name", req.Name), zap.Error(err))
		http.Error(w, err.Error(), computeStatus(err))
		return
	}

	telemetry.ObserveComputation(res.Strategy, res.FellBack, time.Since(start), res.Tensor.Total())
	telemetry.SetResultsTracked(s.store.Len())

	writeJSON(w, http.StatusOK, computeResponse{
		Name:     res.Name,
		Version:  res.Version,
		Strategy: res.Strategy,
		FellBack: res.FellBack,
		NumUnits: res.Tensor.NumUnits(),
		NumBins:  res.Tensor.NumBins(),
		Total:    res.Tensor.Total(),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	res, ok := s.store.Get(name)
	if !ok {
		http.Error(w, "no such result", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, persistence.RecordFromResult(res))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	indices, err := parseUnits(r.URL.Query().Get("units"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := s.store.Select(name, indices)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			http.Error(w, "no such result", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, persistence.RecordFromResult(view))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// computeStatus maps engine validation errors to HTTP status codes.
func computeStatus(err error) int {
	switch {
	case errors.Is(err, ccg.ErrInvalidGeometry),
		errors.Is(err, ccg.ErrStrategyUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, ccg.ErrUnsortedSegment),
		errors.Is(err, ccg.ErrUnitRange):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseUnits parses a comma-separated list of unit indices, e.g. "0,2,5".
func parseUnits(raw string) ([]int, error) {
	if raw == "" {
		return nil, errors.New("units is required, e.g. units=0,2,5")
	}
	parts := strings.Split(raw, ",")
	indices := make([]int, 0, len(parts))
	for _, p := range parts {
		idx, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, errors.New("units must be a comma-separated list of integers")
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe starts the HTTP server on the specified address.
func (s *Server) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("correlogram API server listening", zap.String("addr", addr))
	return httpServer.ListenAndServe()
}
