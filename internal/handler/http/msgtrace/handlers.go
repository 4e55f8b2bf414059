// Package msgtrace exposes read endpoints over the message trace store.
package msgtrace

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"msghub/internal/handler/http/respond"
	"msghub/internal/trace"
)

const (
	defaultRecentLimit      = 20
	defaultStatsWindowHours = 24
)

type GetHandler struct{ Tracer *trace.MessageTracer }

func (h GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("id")
	if traceID == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("trace id required"))
		return
	}
	tr, err := h.Tracer.GetTrace(r.Context(), traceID)
	if err != nil {
		if errors.Is(err, trace.ErrTraceNotFound) {
			respond.SafeError(w, http.StatusNotFound, errors.New("trace not found"))
			return
		}
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, tr)
}

type RecentHandler struct{ Tracer *trace.MessageTracer }

func (h RecentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultRecentLimit
	}
	traces, err := h.Tracer.RecentTraces(r.Context(), limit)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, traces)
}

type StatsHandler struct{ Tracer *trace.MessageTracer }

func (h StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	windowHours, _ := strconv.Atoi(r.URL.Query().Get("window_hours"))
	if windowHours < 1 {
		windowHours = defaultStatsWindowHours
	}
	stats, err := h.Tracer.Statistics(r.Context(), time.Duration(windowHours)*time.Hour)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats)
}

// Register registers the trace routes with the given mux.
func Register(mux *http.ServeMux, tracer *trace.MessageTracer) {
	mux.Handle("GET /traces/recent", RecentHandler{tracer})
	mux.Handle("GET /traces/stats", StatsHandler{tracer})
	mux.Handle("GET /traces/{id}", GetHandler{tracer})
}
