// Package api exposes season rating and simulation over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/logger"
)

// NewRouter wires the handler's routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/rank", h.Rank).Methods(http.MethodPost)
	v1.HandleFunc("/simulate", h.Simulate).Methods(http.MethodPost)
	v1.HandleFunc("/runs/{id:[0-9]+}", h.DeleteRun).Methods(http.MethodDelete)
	v1.HandleFunc("/runs/{id:[0-9]+}/schedules/{index:[0-9]+}", h.GetRunSchedule).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.WithHTTPContext(r.Method, r.URL.Path).WithFields(logrus.Fields{
			"status":   rec.status,
			"duration": time.Since(start),
		}).Info("Request handled")
	})
}

// NewServer returns an http.Server for the router on addr.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
