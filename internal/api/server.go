package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/medscope/telegram-insights/internal/analytics"
)

// PipelineRunner is the pipeline surface the API exposes: manual job
// triggers and run metrics.
type PipelineRunner interface {
	Trigger(job string) error
	GetMetrics() string
}

// Pinger reports warehouse connectivity for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires the analytical query service and the pipeline behind HTTP
type Server struct {
	analytics *analytics.Service
	pipeline  PipelineRunner
	db        Pinger
}

// NewServer creates the API server
func NewServer(analyticsService *analytics.Service, pipelineService PipelineRunner, db Pinger) *Server {
	return &Server{
		analytics: analyticsService,
		pipeline:  pipelineService,
		db:        db,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/analytics/summary", s.handleSummary).Methods("GET")
	router.HandleFunc("/api/channels", s.handleListChannels).Methods("GET")
	router.HandleFunc("/api/channels/{name}", s.handleGetChannel).Methods("GET")
	router.HandleFunc("/api/channels/{name}/activity", s.handleChannelActivity).Methods("GET")
	router.HandleFunc("/api/channels/{name}/messages", s.handleChannelMessages).Methods("GET")
	router.HandleFunc("/api/search/messages", s.handleSearchMessages).Methods("GET")
	router.HandleFunc("/api/reports/top-products", s.handleTopProducts).Methods("GET")
	router.HandleFunc("/api/reports/channel-rankings", s.handleChannelRankings).Methods("GET")
	router.HandleFunc("/api/reports/medical-insights", s.handleMedicalInsights).Methods("GET")
	router.HandleFunc("/api/image-detections", s.handleImageDetections).Methods("GET")

	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	router.HandleFunc("/trigger/{job}", s.handleTrigger).Methods("POST")

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":   "healthy",
		"database": "connected",
	}

	code := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			logrus.Errorf("Health check database ping failed: %v", err)
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, &Response{Success: code == http.StatusOK, Data: status})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.pipeline.GetMetrics()))
}

var triggerJobs = map[string]bool{
	"ingestion":  true,
	"load":       true,
	"transform":  true,
	"detections": true,
	"full":       true,
}

// handleTrigger starts the named job in the background and returns at once
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	job := mux.Vars(r)["job"]
	if !triggerJobs[job] {
		writeBadRequest(w, "unknown job "+job)
		return
	}

	go func() {
		if err := s.pipeline.Trigger(job); err != nil {
			logrus.Errorf("Triggered %s run failed: %v", job, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, &Response{
		Success: true,
		Message: "triggered " + job,
	})
}
