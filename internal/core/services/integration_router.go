package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pontoonhq/pontoon/internal/core/domain"
	"github.com/pontoonhq/pontoon/internal/core/ports"
)

// ToolRegistry is what the router needs from the adapter registry.
type ToolRegistry interface {
	Get(id domain.ToolID) (ports.ToolAdapter, bool)
	IDs() []domain.ToolID
	Capabilities() []domain.ToolCapabilities
}

// DefaultCacheTTL applies to cached action results.
const DefaultCacheTTL = 5 * time.Minute

// IntegrationRouter is the single entrypoint for every tool call. It resolves
// the adapter, enforces auth and rate limits, serves cached results for
// repeated identical requests, dispatches and shapes the response. It never
// returns a Go error: every failure is a structured error inside the response
// so agent callers always get something they can act on.
type IntegrationRouter struct {
	logger    *slog.Logger
	registry  ToolRegistry
	auth      *AuthManager
	rateCache ports.RateCache
	cacheTTL  time.Duration
}

func NewIntegrationRouter(logger *slog.Logger, registry ToolRegistry, auth *AuthManager, rateCache ports.RateCache) *IntegrationRouter {
	return &IntegrationRouter{
		logger:    logger,
		registry:  registry,
		auth:      auth,
		rateCache: rateCache,
		cacheTTL:  DefaultCacheTTL,
	}
}

// Execute runs one integration request through the full pipeline.
func (r *IntegrationRouter) Execute(ctx context.Context, req *domain.IntegrationRequest) *domain.IntegrationResponse {
	start := time.Now()

	adapter, ok := r.registry.Get(req.Tool)
	if !ok {
		ids := r.registry.IDs()
		return r.fail(req, start, domain.CodeUnsupportedTool,
			fmt.Sprintf("tool %q is not registered, available tools: %s", req.Tool, joinToolIDs(ids)),
			map[string]any{"available": ids})
	}

	caps := adapter.Capabilities()
	if !actionSupported(caps, req.Action) {
		return r.fail(req, start, domain.CodeUnsupportedAction,
			fmt.Sprintf("tool %q does not support action %q", req.Tool, req.Action),
			map[string]any{"supported": caps.ActionNames()})
	}

	// Management actions skip auth, rate and cache stages.
	if result := r.dispatchManagement(ctx, adapter, req); result != nil {
		return r.respond(req, start, result, false)
	}

	if caps.RequiresAuth && !adapter.IsConnected(ctx, req.UserID) {
		return r.fail(req, start, domain.CodeAuthRequired,
			fmt.Sprintf("tool %q requires authentication, connect it first", req.Tool),
			map[string]any{"tool": req.Tool})
	}

	if caps.RateLimit != nil {
		count, err := r.rateCache.CallCount(ctx, req.UserID, req.Tool)
		if err != nil {
			// Fail open: a broken counter store never blocks calls.
			r.logger.Warn("rate counter unavailable, allowing call",
				"tool", req.Tool, "user_id", req.UserID, "error", err)
		} else if count >= caps.RateLimit.Requests {
			return r.fail(req, start, domain.CodeRateLimited,
				fmt.Sprintf("rate limit exceeded for %q: %d calls per %s",
					req.Tool, caps.RateLimit.Requests, caps.RateLimit.Window),
				map[string]any{
					"limit":  caps.RateLimit.Requests,
					"window": caps.RateLimit.Window.String(),
				})
		}
	}

	key := cacheKey(req)
	if data, hit, err := r.rateCache.GetCached(ctx, key); err == nil && hit {
		return r.respond(req, start, &domain.ActionResult{Success: true, Data: data}, true)
	}

	result := r.dispatch(ctx, adapter, req)

	if result.Success && len(result.Data) > 0 {
		if err := r.rateCache.SetCached(ctx, key, result.Data, r.cacheTTL); err != nil {
			r.logger.Warn("failed to cache result", "tool", req.Tool, "error", err)
		}
	}

	if caps.RateLimit != nil {
		if err := r.rateCache.IncrCall(ctx, req.UserID, req.Tool, caps.RateLimit.Window); err != nil {
			r.logger.Warn("failed to bump rate counter", "tool", req.Tool, "error", err)
		}
	}

	return r.respond(req, start, result, false)
}

// actionSupported treats the management actions as available on every
// adapter regardless of its capability descriptor.
func actionSupported(caps domain.ToolCapabilities, action string) bool {
	switch action {
	case "connect", "disconnect", "is_connected":
		return true
	}
	return caps.SupportsAction(action)
}

func (r *IntegrationRouter) dispatchManagement(ctx context.Context, adapter ports.ToolAdapter, req *domain.IntegrationRequest) *domain.ActionResult {
	switch req.Action {
	case "connect":
		res := adapter.Connect(ctx, req.UserID)
		if !res.Connected {
			return &domain.ActionResult{
				Success: false,
				Message: res.Error,
				Error: &domain.IntegrationError{
					Code:    domain.CodeAuthRequired,
					Message: res.Error,
				},
			}
		}
		return &domain.ActionResult{Success: true, Data: map[string]any{"connected": true}}
	case "disconnect":
		if err := adapter.Disconnect(ctx, req.UserID); err != nil {
			return &domain.ActionResult{
				Success: false,
				Error: &domain.IntegrationError{
					Code:    domain.CodeInternal,
					Message: err.Error(),
				},
			}
		}
		return &domain.ActionResult{Success: true, Data: map[string]any{"connected": false}}
	case "is_connected":
		return &domain.ActionResult{
			Success: true,
			Data:    map[string]any{"connected": adapter.IsConnected(ctx, req.UserID)},
		}
	}
	return nil
}

func (r *IntegrationRouter) dispatch(ctx context.Context, adapter ports.ToolAdapter, req *domain.IntegrationRequest) *domain.ActionResult {
	switch req.Action {
	case "send":
		return adapter.Send(ctx, req.AgentID, req.UserID, req.Params)
	case "fetch":
		return adapter.Fetch(ctx, req.AgentID, req.UserID, req.Params)
	default:
		// Listed in the descriptor but not routable yet.
		return &domain.ActionResult{
			Success: false,
			Error: &domain.IntegrationError{
				Code:    domain.CodeUnsupportedAction,
				Message: fmt.Sprintf("action %q has no dispatch path", req.Action),
			},
		}
	}
}

// Status reports the connection state of every registered tool for the user,
// or of one tool when the filter is set. States are probed concurrently.
func (r *IntegrationRouter) Status(ctx context.Context, userID string, filter domain.ToolID) []domain.IntegrationStatus {
	ids := r.registry.IDs()
	if filter != "" {
		ids = []domain.ToolID{filter}
	}

	statuses := make([]domain.IntegrationStatus, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			adapter, ok := r.registry.Get(id)
			if !ok {
				mu.Lock()
				statuses[i] = domain.IntegrationStatus{Tool: id, Status: domain.ConnectionError}
				mu.Unlock()
				return nil
			}
			caps := adapter.Capabilities()
			state := domain.ConnectionDisconnected
			if adapter.IsConnected(gctx, userID) {
				state = domain.ConnectionConnected
			}
			status := domain.IntegrationStatus{
				Tool:         id,
				Name:         caps.Name,
				Status:       state,
				Capabilities: caps,
			}
			if state == domain.ConnectionConnected {
				status.LastSynced = r.auth.LastObtained(gctx, id, userID)
			}
			mu.Lock()
			statuses[i] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// Tools lists every registered capability descriptor.
func (r *IntegrationRouter) Tools() []domain.ToolCapabilities {
	return r.registry.Capabilities()
}

// Dispatch routes an action to the first usable tool: the preferred ones in
// order, then the fallbacks. The failure response names every candidate so
// callers can see the full attempt path.
func (r *IntegrationRouter) Dispatch(ctx context.Context, userID, agentID, action string, params map[string]any, preferred, fallback []domain.ToolID) *domain.IntegrationResponse {
	attempted := []domain.ToolID{}
	seen := map[domain.ToolID]bool{}
	dispatched := false

	candidates := append(append([]domain.ToolID{}, preferred...), fallback...)
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		attempted = append(attempted, id)

		adapter, ok := r.registry.Get(id)
		if !ok || !adapter.Capabilities().SupportsAction(action) {
			continue
		}
		if !adapter.IsConnected(ctx, userID) {
			continue
		}

		dispatched = true
		resp := r.Execute(ctx, &domain.IntegrationRequest{
			Tool:    id,
			Action:  action,
			Params:  params,
			AgentID: agentID,
			UserID:  userID,
		})
		if resp.Success {
			return resp
		}
	}

	req := &domain.IntegrationRequest{Action: action, AgentID: agentID, UserID: userID}
	if !dispatched {
		return r.fail(req, time.Now(), domain.CodeAuthRequired,
			fmt.Sprintf("no connected tool can handle action %q, tried: %s", action, joinToolIDs(attempted)),
			map[string]any{"tried": attempted})
	}
	return r.fail(req, time.Now(), domain.CodeUpstreamError,
		fmt.Sprintf("action %q failed on every candidate tool: %s", action, joinToolIDs(attempted)),
		map[string]any{"tried": attempted})
}

func joinToolIDs(ids []domain.ToolID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

func (r *IntegrationRouter) respond(req *domain.IntegrationRequest, start time.Time, result *domain.ActionResult, cached bool) *domain.IntegrationResponse {
	resp := &domain.IntegrationResponse{
		Success: result.Success,
		Data:    result.Data,
		Error:   result.Error,
		Metadata: domain.ResponseMetadata{
			Tool:            req.Tool,
			Action:          req.Action,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
			Cached:          cached,
		},
	}
	if !result.Success && resp.Error == nil {
		resp.Error = &domain.IntegrationError{
			Code:    domain.CodeInternal,
			Message: result.Message,
		}
	}
	return resp
}

func (r *IntegrationRouter) fail(req *domain.IntegrationRequest, start time.Time, code domain.ErrorCode, message string, details map[string]any) *domain.IntegrationResponse {
	r.logger.Warn("integration request rejected",
		"tool", req.Tool, "action", req.Action, "user_id", req.UserID, "code", code)
	return &domain.IntegrationResponse{
		Success: false,
		Error:   &domain.IntegrationError{Code: code, Message: message, Details: details},
		Metadata: domain.ResponseMetadata{
			Tool:            req.Tool,
			Action:          req.Action,
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		},
	}
}

// cacheKey derives a stable key from everything that shapes a response.
// encoding/json sorts map keys, so equal params always hash the same.
func cacheKey(req *domain.IntegrationRequest) string {
	payload, _ := json.Marshal(struct {
		User   string         `json:"user"`
		Tool   domain.ToolID  `json:"tool"`
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}{req.UserID, req.Tool, req.Action, req.Params})
	sum := sha256.Sum256(payload)
	return "intcache:" + hex.EncodeToString(sum[:])
}
