// Package gateway is the HTTP surface of the integration and workflow
// subsystem. Handlers are thin: decode, call the service, encode. All
// domain decisions live in the services.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pontoonhq/pontoon/internal/core/ports"
	"github.com/pontoonhq/pontoon/internal/core/services"
)

type Server struct {
	logger    *slog.Logger
	router    *services.IntegrationRouter
	engine    *services.WorkflowEngine
	auth      *services.AuthManager
	workflows ports.WorkflowRepository
	eventBus  *services.EventBus
}

func NewServer(
	logger *slog.Logger,
	router *services.IntegrationRouter,
	engine *services.WorkflowEngine,
	auth *services.AuthManager,
	workflows ports.WorkflowRepository,
	eventBus *services.EventBus,
) *Server {
	return &Server{
		logger:    logger,
		router:    router,
		engine:    engine,
		auth:      auth,
		workflows: workflows,
		eventBus:  eventBus,
	}
}

// Handler returns the http.Handler for the server. SSE endpoints bypass the
// request validator; everything else goes through it.
func (s *Server) Handler() http.Handler {
	routes := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Integrations API
		if r.Method == "POST" && path == "/v1/integrations/execute" {
			s.handleExecute(w, r)
			return
		}
		if r.Method == "POST" && path == "/v1/integrations/dispatch" {
			s.handleDispatch(w, r)
			return
		}
		if r.Method == "GET" && path == "/v1/integrations/status" {
			s.handleStatus(w, r)
			return
		}
		if r.Method == "GET" && path == "/v1/integrations/tools" {
			s.handleListTools(w, r)
			return
		}
		if r.Method == "GET" && isToolSubPath(path, "/auth-url") {
			s.handleAuthURL(w, r)
			return
		}
		if r.Method == "POST" && isToolSubPath(path, "/exchange") {
			s.handleExchange(w, r)
			return
		}
		if r.Method == "POST" && isToolSubPath(path, "/refresh") {
			s.handleRefresh(w, r)
			return
		}
		if r.Method == "GET" && isToolSubPath(path, "/test") {
			s.handleTestConnection(w, r)
			return
		}

		// Workflows API
		if path == "/v1/workflows" {
			switch r.Method {
			case "GET":
				s.handleListWorkflows(w, r)
				return
			case "POST":
				s.handleCreateWorkflow(w, r)
				return
			}
		}
		if strings.HasPrefix(path, "/v1/workflows/") {
			rest := strings.TrimPrefix(path, "/v1/workflows/")
			switch {
			case r.Method == "POST" && strings.HasSuffix(rest, "/execute"):
				s.handleExecuteWorkflow(w, r)
				return
			case r.Method == "GET" && strings.HasSuffix(rest, "/executions"):
				s.handleListExecutions(w, r)
				return
			case r.Method == "GET" && !strings.Contains(rest, "/"):
				s.handleGetWorkflow(w, r)
				return
			}
		}

		// Executions API
		if r.Method == "GET" && path == "/v1/executions" {
			s.handleListExecutions(w, r)
			return
		}
		if strings.HasPrefix(path, "/v1/executions/") {
			rest := strings.TrimPrefix(path, "/v1/executions/")
			switch {
			case r.Method == "GET" && strings.HasSuffix(rest, "/events"):
				s.handleExecutionSSE(w, r)
				return
			case r.Method == "POST" && strings.HasSuffix(rest, "/cancel"):
				s.handleCancelExecution(w, r)
				return
			case r.Method == "GET" && !strings.Contains(rest, "/"):
				s.handleGetExecution(w, r)
				return
			}
		}

		if r.Method == "GET" && path == "/healthz" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}

		http.NotFound(w, r)
	})

	return s.validationMiddleware(routes)
}

// isToolSubPath matches /v1/integrations/{tool}<suffix> with a non-empty,
// slash-free tool segment.
func isToolSubPath(path, suffix string) bool {
	const prefix = "/v1/integrations/"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return false
	}
	middle := path[len(prefix) : len(path)-len(suffix)]
	return len(middle) > 0 && !strings.Contains(middle, "/")
}

// pathSegment returns the path element at the given index, counting from
// zero after the leading slash.
func pathSegment(path string, idx int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
