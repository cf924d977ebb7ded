package serve

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"qmcpu/internal/common"
	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/machine"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	maxRequestBytes = 64 * 1024
	requestIDHeader = "X-Request-ID"
	tracerName      = "qmcpu/serve"
)

type requestIDKey struct{}

// resolveRequest is the body of POST /api/v1/cpu-options. Host parameters that are
// not set fall back to the server defaults.
type resolveRequest struct {
	VM cpuconfig.VMConfig `json:"vm"`
	common.ResolveParams
	HotplugID int `json:"hotplug_id,omitempty"`
}

type resolveResponse struct {
	Args           []string `json:"args"`
	Device         string   `json:"device,omitempty"`
	MachineVersion string   `json:"machine_version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	manager  *cpuconfig.RegistryManager
	resolver *cpuconfig.Resolver
	defaults common.ResolveParams
	metrics  *serverMetrics
}

// NewHandler returns the HTTP API. Metrics are registered with reg and served from it.
func NewHandler(manager *cpuconfig.RegistryManager, defaults common.ResolveParams, reg *prometheus.Registry) http.Handler {
	s := &server{
		manager:  manager,
		resolver: cpuconfig.NewResolver(manager),
		defaults: defaults,
	}
	s.metrics = newServerMetrics(reg, s.countModels)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/cpu-options", s.handleCPUOptions)
	mux.HandleFunc("GET /api/v1/models", s.handleModels)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return withRequestID(mux)
}

// withRequestID keeps a valid incoming X-Request-ID, otherwise assigns a new one, and
// echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *server) countModels() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	models, err := s.manager.List(ctx)
	if err != nil {
		slog.Warn("failed to count custom models", slog.String("error", err.Error()))
		return 0
	}
	return float64(len(models))
}

func (s *server) handleCPUOptions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "cpu-options")
	defer span.End()
	id := requestID(ctx)
	span.SetAttributes(attribute.String("request.id", id))
	var req resolveRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.metrics.resolutions.WithLabelValues(outcomeRejected, "").Inc()
		span.SetStatus(codes.Error, "invalid request body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	params := s.withDefaults(req.ResolveParams)
	span.SetAttributes(attribute.String("vm.cpu", req.VM.CPU), attribute.String("arch", params.Arch))
	resp, err := s.resolve(ctx, req.VM, params, req.HotplugID)
	s.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := statusForError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := outcomeRejected
		if status >= http.StatusInternalServerError {
			outcome = outcomeError
			slog.Error("CPU option resolution failed", slog.String("request_id", id), slog.String("cpu", req.VM.CPU), slog.String("error", err.Error()))
		} else {
			slog.Debug("CPU option request rejected", slog.String("request_id", id), slog.String("cpu", req.VM.CPU), slog.String("error", err.Error()))
		}
		s.metrics.resolutions.WithLabelValues(outcome, params.Arch).Inc()
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	s.metrics.resolutions.WithLabelValues(outcomeOK, params.Arch).Inc()
	span.SetAttributes(attribute.String("machine.version", resp.MachineVersion))
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) withDefaults(params common.ResolveParams) common.ResolveParams {
	if params.Arch == "" {
		params.Arch = s.defaults.Arch
	}
	if params.EmulatorBuild == "" {
		params.EmulatorBuild = s.defaults.EmulatorBuild
	}
	return params
}

func (s *server) resolve(ctx context.Context, conf cpuconfig.VMConfig, params common.ResolveParams, hotplugID int) (resolveResponse, error) {
	var resp resolveResponse
	if err := common.CheckVMCPU(ctx, s.manager, conf); err != nil {
		return resp, err
	}
	req, err := common.BuildOptionsRequest(conf, params)
	if err != nil {
		return resp, &requestError{err}
	}
	resp.MachineVersion = req.MachineVersion
	resp.Args, err = s.resolver.CPUOptions(ctx, conf, req)
	if err != nil {
		return resp, err
	}
	if hotplugID != 0 {
		resp.Device, err = s.resolver.CPUDevice(ctx, conf, hotplugID)
		if err != nil {
			return resp, &requestError{err}
		}
	}
	return resp, nil
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	infos, err := s.manager.ListAllModels(r.Context())
	if err != nil {
		slog.Error("failed to list models", slog.String("request_id", requestID(r.Context())), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// requestError marks errors caused by the request parameters
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

var clientErrors = []error{
	cpuconfig.ErrCannotParseCPU,
	cpuconfig.ErrParse,
	cpuconfig.ErrMissingCPUType,
	cpuconfig.ErrModelNotFound,
	cpuconfig.ErrUnknownBuiltinType,
	cpuconfig.ErrFlagNotAllowed,
	cpuconfig.ErrPropertyNotAllowed,
	machine.ErrInvalidVersionString,
}

func statusForError(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	for _, kind := range clientErrors {
		if errors.Is(err, kind) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}
