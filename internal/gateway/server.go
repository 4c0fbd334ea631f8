// Package gateway exposes the task queue, provider health and the event
// stream over HTTP and websocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tbaudier/overseer/internal/events"
	"github.com/tbaudier/overseer/internal/gateway/ws"
	"github.com/tbaudier/overseer/internal/providers"
	"github.com/tbaudier/overseer/internal/queue"
	"github.com/tbaudier/overseer/internal/storage/usage"
)

// Server is the Overseer gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	manager    *queue.Manager
	registry   *providers.Registry
	ledger     *usage.Ledger // optional
	workspace  string        // artifact download root; empty disables /api/files
	started    time.Time
}

// Options bundle the gateway's dependencies.
type Options struct {
	Bus       *events.Bus
	Manager   *queue.Manager
	Registry  *providers.Registry
	Ledger    *usage.Ledger
	Workspace string
	Host      string
	Port      int
}

// NewServer wires the routes and websocket hub.
func NewServer(opts Options) *Server {
	s := &Server{
		hub:       ws.NewHub(opts.Bus, opts.Manager),
		bus:       opts.Bus,
		manager:   opts.Manager,
		registry:  opts.Registry,
		ledger:    opts.Ledger,
		workspace: opts.Workspace,
		started:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/ws", s.hub.ServeWS)

	r.Post("/api/tasks", s.handleSubmitTask)
	r.Get("/api/tasks", s.handleListTasks)
	r.Get("/api/tasks/{id}", s.handleGetTask)

	r.Post("/api/threads", s.handleCreateThread)
	r.Get("/api/threads", s.handleListThreads)
	r.Get("/api/threads/{id}/tasks", s.handleThreadTasks)
	r.Patch("/api/threads/{id}", s.handleUpdateThread)
	r.Delete("/api/threads/{id}", s.handleDeleteThread)

	r.Get("/api/usage", s.handleUsage)

	if s.workspace != "" {
		fileServer := http.StripPrefix("/api/files/", http.FileServer(http.Dir(s.workspace)))
		r.Get("/api/files/*", fileServer.ServeHTTP)
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler: r,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. Blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type providerHealth struct {
		Name     string `json:"name"`
		Status   string `json:"status"`
		Failures int    `json:"consecutive_failures,omitempty"`
	}

	var provs []providerHealth
	if s.registry != nil {
		for _, p := range s.registry.All() {
			provs = append(provs, providerHealth{
				Name:     p.Name(),
				Status:   string(p.Status()),
				Failures: p.ConsecutiveFailures(),
			})
		}
	}

	interrupted := 0
	if s.manager != nil {
		if n, err := s.manager.CountInterrupted(); err == nil {
			interrupted = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"uptime":            time.Since(s.started).String(),
		"providers":         provs,
		"interrupted_tasks": interrupted,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	writeJSON(w, http.StatusOK, s.bus.History(limit))
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt      string `json:"prompt"`
		ThreadID    string `json:"thread_id"`
		ThreadTitle string `json:"thread_title"`
		Model       string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	taskID, err := s.manager.SubmitTask(req.Prompt, req.ThreadID, req.ThreadTitle, req.Model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	task, err := s.manager.GetTask(taskID)
	if err != nil || task == nil {
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id":   taskID,
		"thread_id": task.ThreadID,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.manager.ListTasks()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.manager.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	thread, err := s.manager.CreateThread(req.ID, req.Title)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.manager.ListThreads()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleThreadTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	thread, err := s.manager.GetThread(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if thread == nil {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	tasks, err := s.manager.GetThreadTasks(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*queue.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleUpdateThread(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Mode     *string               `json:"mode"`
		Settings *queue.ThreadSettings `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.Mode != nil {
		if err := s.manager.SetThreadMode(id, queue.ThreadMode(*req.Mode)); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}
	if req.Settings != nil {
		if err := s.manager.UpdateThreadSettings(id, *req.Settings); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	thread, err := s.manager.GetThread(id)
	if err != nil || thread == nil {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleDeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteThread(chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "usage accounting not enabled", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.ledger.Summary()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []usage.SummaryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
