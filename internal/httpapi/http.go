// Package httpapi exposes classification, the call queue and ops endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"dispatch_triage/formatting"
	"dispatch_triage/generative"
	"dispatch_triage/incident"
	"dispatch_triage/internal/dispatch"
	"dispatch_triage/internal/events"
	"dispatch_triage/internal/session"
	"dispatch_triage/metrics"
	"dispatch_triage/queue"
	"dispatch_triage/reference"
)

const maxBodyBytes = 1 << 20

// HealthChecker reports backing-store reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Availability reports the generative backend state.
type Availability interface {
	Enabled() bool
	Available() bool
}

// QueueStats reports worker pool state.
type QueueStats interface {
	Stats() queue.Stats
	Healthy() bool
}

// Deps are the components the router serves. Store, Generative and Jobs may be nil.
type Deps struct {
	Sessions   *session.Manager
	Dataset    *reference.Dataset
	Matcher    *reference.Matcher
	Bus        *events.Bus
	Metrics    *metrics.Metrics
	Store      HealthChecker
	Generative Availability
	Jobs       QueueStats
	Logger     *slog.Logger
}

// Router builds HTTP handlers for /api and /ops.
type Router struct {
	d Deps
}

func NewRouter(d Deps) *Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Router{d: d}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/classify", r.classify)
	mux.HandleFunc("POST /api/calls", r.startCall)
	mux.HandleFunc("GET /api/calls", r.listCalls)
	mux.HandleFunc("DELETE /api/calls", r.clearCalls)
	mux.HandleFunc("GET /api/calls/{id}", r.getCall)
	mux.HandleFunc("POST /api/calls/{id}/transcript", r.appendTranscript)
	mux.HandleFunc("POST /api/calls/{id}/route", r.routeCall)
	mux.HandleFunc("GET /api/calls/{id}/report", r.report)
	mux.HandleFunc("GET /api/reference/{region}/{code}", r.lookup)
	mux.HandleFunc("GET /api/events", r.events)
	mux.HandleFunc("GET /ops/health", r.health)
	mux.HandleFunc("GET /ops/status", r.status)
}

type classifyRequest struct {
	Transcript string `json:"transcript"`
	Enrich     bool   `json:"enrich"`
}

type classifyResponse struct {
	incident.Assessment
	Analysis   string                    `json:"analysisSource"`
	Narrative  generative.Narrative      `json:"narrative"`
	Script     string                    `json:"script"`
	Regional   reference.RegionalMatch   `json:"regional"`
	RealTime   reference.RealTimeContext `json:"realTime"`
	Standard   *reference.Standard       `json:"standard,omitempty"`
	Transcript string                    `json:"transcript"`
}

func (r *Router) classify(w http.ResponseWriter, req *http.Request) {
	var body classifyRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	res := r.d.Sessions.Classify(req.Context(), body.Transcript, body.Enrich)
	resp := classifyResponse{
		Assessment: res.Assessment,
		Analysis:   res.Source.String(),
		Narrative:  res.Narrative,
		Script:     formatting.FormatScript(body.Transcript, res.Assessment),
		Transcript: body.Transcript,
	}
	if r.d.Matcher != nil {
		resp.Regional = r.d.Matcher.Match(body.Transcript)
		resp.RealTime = r.d.Matcher.RealTime()
	}
	if r.d.Dataset != nil {
		if std, ok := r.d.Dataset.Standard(res.Assessment.StandardizedCode); ok {
			resp.Standard = &std
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (r *Router) startCall(w http.ResponseWriter, req *http.Request) {
	var body struct {
		CallerID string `json:"callerId"`
	}
	if req.ContentLength != 0 && !decodeJSON(w, req, &body) {
		return
	}
	respondJSON(w, http.StatusCreated, r.d.Sessions.Start(body.CallerID))
}

func (r *Router) listCalls(w http.ResponseWriter, req *http.Request) {
	calls := r.d.Sessions.Calls()
	respondJSON(w, http.StatusOK, map[string]any{
		"active":    calls.Active(),
		"completed": calls.Completed(),
	})
}

func (r *Router) clearCalls(w http.ResponseWriter, req *http.Request) {
	r.d.Sessions.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) getCall(w http.ResponseWriter, req *http.Request) {
	c, err := r.d.Sessions.Calls().Get(req.PathValue("id"))
	if err != nil {
		r.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (r *Router) appendTranscript(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	c, err := r.d.Sessions.Append(req.Context(), req.PathValue("id"), body.Text)
	if err != nil {
		r.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (r *Router) routeCall(w http.ResponseWriter, req *http.Request) {
	c, err := r.d.Sessions.Route(req.Context(), req.PathValue("id"))
	if err != nil {
		r.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (r *Router) report(w http.ResponseWriter, req *http.Request) {
	rep, err := r.d.Sessions.Report(req.PathValue("id"))
	if err != nil {
		r.respondError(w, err)
		return
	}
	switch strings.ToLower(req.URL.Query().Get("format")) {
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, formatting.BuildReport(rep))
	case "json":
		respondJSON(w, http.StatusOK, rep)
	default:
		http.Error(w, "format must be text or json", http.StatusBadRequest)
	}
}

func (r *Router) lookup(w http.ResponseWriter, req *http.Request) {
	if r.d.Dataset == nil {
		http.Error(w, "reference data unavailable", http.StatusServiceUnavailable)
		return
	}
	entry, err := r.d.Dataset.Lookup(req.PathValue("region"), req.PathValue("code"))
	if err != nil {
		r.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (r *Router) events(w http.ResponseWriter, req *http.Request) {
	if r.d.Bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := r.d.Bus.Subscribe()
	defer cancel()
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()
	for {
		select {
		case <-req.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				r.d.Logger.Warn("encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	if r.d.Store != nil {
		if err := r.d.Store.Health(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	if r.d.Jobs != nil && !r.d.Jobs.Healthy() {
		http.Error(w, "worker pool not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	out := map[string]any{
		"activeCalls":    len(r.d.Sessions.Calls().Active()),
		"completedCalls": len(r.d.Sessions.Calls().Completed()),
	}
	if r.d.Jobs != nil {
		stats := r.d.Jobs.Stats()
		out["queue"] = stats
		if r.d.Metrics != nil {
			r.d.Metrics.UpdateQueue(stats.Length, stats.Capacity, stats.WorkerCount)
		}
	}
	if r.d.Metrics != nil {
		out["metrics"] = r.d.Metrics.Snapshot()
	}
	if r.d.Generative != nil {
		out["generative"] = map[string]bool{
			"enabled":   r.d.Generative.Enabled(),
			"available": r.d.Generative.Available(),
		}
	}
	if r.d.Matcher != nil {
		out["realTime"] = r.d.Matcher.RealTime()
	}
	respondJSON(w, http.StatusOK, out)
}

func (r *Router) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound),
		errors.Is(err, reference.ErrUnknownRegion),
		errors.Is(err, reference.ErrUnknownCode):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		r.d.Logger.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json", "error", err)
	}
}
