package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the router. allowedOrigins configures CORS; nil allows any origin.
func (h *Handlers) Routes(allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: h.log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/", h.Liveness)
	r.Get("/healthz", h.Health)

	// User routes
	r.Get("/users", h.ListUsers)
	r.Post("/users", h.CreateUser)

	// Task routes; the static /tasks/reorder segment wins over /tasks/{id}
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Put("/tasks/reorder", h.ReorderTasks)
	r.Put("/tasks/{id}", h.UpdateTask)
	r.Patch("/tasks/{id}", h.PatchTask)
	r.Delete("/tasks/{id}", h.DeleteTask)
	r.Patch("/tasks/{id}/category", h.UpdateTaskCategory)

	return r
}
