// Target is a controllable HTTP server for trying out the monitor locally.
// GET /health answers with the configured status after the configured delay;
// POST /mode changes both.
//
// Usage:
//
//	go run target.go -port 8081
//	curl -X POST 'localhost:8081/mode?status=503&delay=2s'
//
// Each response carries a unique X-Request-ID.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type mode struct {
	mutex  sync.RWMutex
	status int
	delay  time.Duration
}

func (m *mode) get() (int, time.Duration) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.status, m.delay
}

func (m *mode) set(status int, delay time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.status = status
	m.delay = delay
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	current := &mode{status: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, delay := current.get()
		requestID := uuid.NewString()

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		log.Info("probe received",
			slog.String("request_id", requestID),
			slog.String("from", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
			slog.Int("status", status))

		w.Header().Set("X-Request-ID", requestID)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(http.StatusText(status)))
	})

	mux.HandleFunc("POST /mode", func(w http.ResponseWriter, r *http.Request) {
		status, delay := current.get()
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 100 || parsed > 599 {
				http.Error(w, "status must be an HTTP status code", http.StatusBadRequest)
				return
			}
			status = parsed
		}
		if raw := r.URL.Query().Get("delay"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed < 0 {
				http.Error(w, "delay must be a non-negative duration", http.StatusBadRequest)
				return
			}
			delay = parsed
		}
		current.set(status, delay)
		log.Info("mode changed", slog.Int("status", status), slog.Duration("delay", delay))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "delay": delay.String()})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting target", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
