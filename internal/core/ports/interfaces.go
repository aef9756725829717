package ports

import (
	"context"
	"time"

	"github.com/pontoonhq/pontoon/internal/core/domain"
)

// ToolAdapter is the fixed action contract every external tool implements.
// Adapters translate tool-specific requests, responses and errors into the
// uniform result shape; they decide for themselves what "connected" means.
type ToolAdapter interface {
	// Capabilities returns the static descriptor for this tool.
	Capabilities() domain.ToolCapabilities

	// Connect establishes or verifies a connection for the user.
	Connect(ctx context.Context, userID string) domain.ConnectResult

	// Disconnect removes the user's connection state.
	Disconnect(ctx context.Context, userID string) error

	// IsConnected reports whether the user has a usable connection.
	IsConnected(ctx context.Context, userID string) bool

	// Send pushes data to the tool on behalf of an agent.
	Send(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult

	// Fetch pulls data from the tool on behalf of an agent.
	Fetch(ctx context.Context, agentID, userID string, params map[string]any) *domain.ActionResult
}

// RateCache mediates rate-limit counters and response caching. Both
// implementations (Redis-backed and no-op) satisfy it; the router never
// knows which is active. Errors from the backing store must degrade to
// "allowed" / "miss", never block a call.
type RateCache interface {
	// CallCount returns the current counter for (user, tool) in the active
	// window.
	CallCount(ctx context.Context, userID string, tool domain.ToolID) (int, error)

	// IncrCall increments the (user, tool) counter and (re)sets its expiry
	// to the tool's window.
	IncrCall(ctx context.Context, userID string, tool domain.ToolID, window time.Duration) error

	// GetCached returns a cached payload for the key, if present.
	GetCached(ctx context.Context, key string) (map[string]any, bool, error)

	// SetCached stores a payload under the key with the given TTL.
	SetCached(ctx context.Context, key string, data map[string]any, ttl time.Duration) error
}

// CredentialStore owns OAuth tokens per (user, tool). At most one active
// token set per pair.
type CredentialStore interface {
	GetTokens(ctx context.Context, userID string, tool domain.ToolID) (*domain.OAuthTokens, error)
	PutTokens(ctx context.Context, userID string, tool domain.ToolID, tokens *domain.OAuthTokens) error
	DeleteTokens(ctx context.Context, userID string, tool domain.ToolID) error
}

// ExecutionRepository is the durable source of truth for execution records.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, exec *domain.WorkflowExecution) error
	GetExecution(ctx context.Context, id domain.ExecutionID) (*domain.WorkflowExecution, error)
	ListExecutions(ctx context.Context, workflowID domain.WorkflowID) ([]domain.WorkflowExecution, error)
}

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, wf *domain.Workflow) error
	GetWorkflow(ctx context.Context, id domain.WorkflowID) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
}

// AgentDirectory resolves agent ids for workflow execution. The portal's
// agent CRUD lives outside this module.
type AgentDirectory interface {
	Resolve(ctx context.Context, agentID string) (*domain.AgentProfile, error)
}
