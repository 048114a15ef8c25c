// Package api is the HTTP surface: workflow management, trigger submission
// (manual, webhook, schedule), run inspection and control.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/soochol/autoflow/internal/engine"
	"github.com/soochol/autoflow/internal/repository"
	"github.com/soochol/autoflow/internal/services"
)

type Server struct {
	workflowSvc  *services.WorkflowService
	runSvc       *services.RunService
	schedulerSvc *services.SchedulerService
	limiter      *services.ConcurrencyLimiter
	triggerRepo  repository.TriggerRepository
	events       *engine.EventBus
}

func NewServer(workflowSvc *services.WorkflowService, runSvc *services.RunService) *Server {
	return &Server{
		workflowSvc: workflowSvc,
		runSvc:      runSvc,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Webhook-Signature"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Get("/", s.listWorkflows)
			r.Get("/{id}", s.getWorkflow)
			r.Put("/{id}", s.updateWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Post("/{id}/run", s.runWorkflow)
			r.Get("/{id}/executions", s.listWorkflowExecutions)
			r.Get("/{id}/triggers", s.listTriggers)
			r.Get("/{id}/schedules", s.listWorkflowSchedules)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Get("/", s.listExecutions)
			r.Get("/{id}", s.getExecution)
			r.Get("/{id}/logs", s.listExecutionLogs)
			r.Get("/{id}/events", s.streamExecutionEvents)
			r.Post("/{id}/stop", s.stopExecution)
			r.Post("/{id}/retry", s.retryExecution)
		})
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.createSchedule)
			r.Get("/", s.listSchedules)
			r.Get("/{id}", s.getSchedule)
			r.Put("/{id}", s.updateSchedule)
			r.Delete("/{id}", s.deleteSchedule)
			r.Post("/{id}/pause", s.pauseSchedule)
			r.Post("/{id}/resume", s.resumeSchedule)
			r.Post("/{id}/trigger", s.triggerSchedule)
		})
		r.Get("/scheduler/stats", s.getSchedulerStats)
		r.Route("/triggers", func(r chi.Router) {
			r.Post("/", s.createTrigger)
			r.Get("/{id}", s.getTrigger)
			r.Delete("/{id}", s.deleteTrigger)
		})
		r.Post("/hooks/{id}", s.handleWebhook)
	})

	return r
}

// SetSchedulerService configures the scheduler service.
func (s *Server) SetSchedulerService(svc *services.SchedulerService) {
	s.schedulerSvc = svc
}

// SetConcurrencyLimiter configures the concurrency limiter reported by stats.
func (s *Server) SetConcurrencyLimiter(limiter *services.ConcurrencyLimiter) {
	s.limiter = limiter
}

// SetTriggerRepository configures the webhook trigger repository.
func (s *Server) SetTriggerRepository(repo repository.TriggerRepository) {
	s.triggerRepo = repo
}

// SetEventBus enables live node event streaming.
func (s *Server) SetEventBus(bus *engine.EventBus) {
	s.events = bus
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
