package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

// handleExecute runs one integration request. The router owns all failure
// shaping, so the HTTP status is 200 unless the body itself is unreadable.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req domain.IntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	resp := s.router.Execute(r.Context(), &req)
	writeJSON(w, http.StatusOK, resp)
}

type dispatchRequest struct {
	UserID    string          `json:"user_id"`
	AgentID   string          `json:"agent_id,omitempty"`
	Action    string          `json:"action"`
	Params    map[string]any  `json:"params,omitempty"`
	Preferred []domain.ToolID `json:"preferred,omitempty"`
	Fallback  []domain.ToolID `json:"fallback,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "user_id and action are required")
		return
	}

	resp := s.router.Dispatch(r.Context(), req.UserID, req.AgentID, req.Action, req.Params, req.Preferred, req.Fallback)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	filter := domain.ToolID(r.URL.Query().Get("tool"))

	statuses := s.router.Status(r.Context(), userID, filter)
	writeJSON(w, http.StatusOK, map[string]any{"integrations": statuses})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.router.Tools()})
}

// handleAuthURL answers /v1/integrations/{tool}/auth-url.
func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	tool := domain.ToolID(pathSegment(r.URL.Path, 2))
	state := r.URL.Query().Get("state")

	u := s.auth.GenerateAuthURL(tool, state)
	if u == "" {
		writeError(w, http.StatusNotFound, "no oauth configuration for tool "+string(tool))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

type exchangeRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	tool := domain.ToolID(pathSegment(r.URL.Path, 2))

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "user_id and code are required")
		return
	}

	tokens := s.auth.ExchangeCode(r.Context(), tool, req.UserID, req.Code)
	if tokens == nil {
		writeError(w, http.StatusBadGateway, "code exchange failed for tool "+string(tool))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": true,
		"tool":      tool,
		"scope":     tokens.Scope,
	})
}

type refreshRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tool := domain.ToolID(pathSegment(r.URL.Path, 2))

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	tokens := s.auth.RefreshToken(r.Context(), tool, req.UserID)
	if tokens == nil {
		writeError(w, http.StatusBadGateway, "token refresh failed for tool "+string(tool))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed":  true,
		"tool":       tool,
		"expires_at": tokens.ExpiresAt,
	})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	tool := domain.ToolID(pathSegment(r.URL.Path, 2))
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ok := s.auth.TestConnection(r.Context(), tool, userID)
	writeJSON(w, http.StatusOK, map[string]any{"tool": tool, "reachable": ok})
}
