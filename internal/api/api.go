package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
	"github.com/angeloszaimis/window-monitor/internal/scheduler"
	"github.com/angeloszaimis/window-monitor/internal/status"
)

// Monitors is the service surface the API drives.
type Monitors interface {
	Add(d monitor.Draft) (monitor.Monitor, error)
	Update(id string, p monitor.Patch) (monitor.Monitor, error)
	Remove(id string) error
	Get(id string) (monitor.Monitor, error)
	List() []monitor.Monitor
	Start(id string) (monitor.Monitor, error)
	Stop(id string) (monitor.Monitor, error)
	Toggle(id string) (monitor.Monitor, error)
	Status(id string) (monitor.Status, error)
	Latest(id string) (monitor.ProbeResult, bool, error)
	RecentLogs(id string, limit int) ([]monitor.ProbeResult, error)
	Subscribe(buffer int) (<-chan status.Event, func())
}

type Handler struct {
	monitors     Monitors
	logger       *slog.Logger
	eventsBuffer int
}

// StatusResponse is the body of GET /monitors/{id}/status.
type StatusResponse struct {
	ID     string               `json:"id"`
	Status monitor.Status       `json:"status"`
	Latest *monitor.ProbeResult `json:"latest,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(monitors Monitors, logger *slog.Logger, eventsBuffer int) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if eventsBuffer <= 0 {
		eventsBuffer = 16
	}
	return &Handler{
		monitors:     monitors,
		logger:       logger,
		eventsBuffer: eventsBuffer,
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /monitors", h.listMonitors)
	mux.HandleFunc("POST /monitors", h.createMonitor)
	mux.HandleFunc("GET /monitors/{id}", h.getMonitor)
	mux.HandleFunc("PATCH /monitors/{id}", h.updateMonitor)
	mux.HandleFunc("DELETE /monitors/{id}", h.deleteMonitor)
	mux.HandleFunc("POST /monitors/{id}/start", h.lifecycle(h.monitors.Start))
	mux.HandleFunc("POST /monitors/{id}/stop", h.lifecycle(h.monitors.Stop))
	mux.HandleFunc("POST /monitors/{id}/toggle", h.lifecycle(h.monitors.Toggle))
	mux.HandleFunc("GET /monitors/{id}/status", h.monitorStatus)
	mux.HandleFunc("GET /monitors/{id}/logs", h.monitorLogs)
	mux.HandleFunc("GET /events", h.streamEvents)
	mux.HandleFunc("GET /healthz", h.health)
}

func (h *Handler) listMonitors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitors.List())
}

func (h *Handler) createMonitor(w http.ResponseWriter, r *http.Request) {
	var d monitor.Draft
	if !decode(w, r, &d) {
		return
	}

	m, err := h.monitors.Add(d)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) getMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.monitors.Get(r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) updateMonitor(w http.ResponseWriter, r *http.Request) {
	var p monitor.Patch
	if !decode(w, r, &p) {
		return
	}

	m, err := h.monitors.Update(r.PathValue("id"), p)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	if err := h.monitors.Remove(r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lifecycle(action func(id string) (monitor.Monitor, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := action(r.PathValue("id"))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func (h *Handler) monitorStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	current, err := h.monitors.Status(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := StatusResponse{ID: id, Status: current}
	if latest, ok, err := h.monitors.Latest(id); err == nil && ok {
		resp.Latest = &latest
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) monitorLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	results, err := h.monitors.RecentLogs(r.PathValue("id"), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case monitor.IsNotFound(err):
		code = http.StatusNotFound
	case monitor.IsValidation(err):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrClosed):
		code = http.StatusServiceUnavailable
	default:
		h.logger.Error("Request failed", slog.Any("err", err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntax *json.SyntaxError
		msg := "invalid JSON body: " + err.Error()
		if errors.As(err, &syntax) {
			msg = "malformed JSON body"
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
