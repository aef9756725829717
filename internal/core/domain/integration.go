package domain

import (
	"errors"
	"time"
)

type ToolID string

// ConnectionState is the derived auth state of a (user, tool) pair.
type ConnectionState string

const (
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionError        ConnectionState = "error"
)

// ErrorCode classifies integration failures on the wire.
type ErrorCode string

const (
	CodeUnsupportedTool   ErrorCode = "unsupported_tool"
	CodeUnsupportedAction ErrorCode = "unsupported_action"
	CodeAuthRequired      ErrorCode = "authentication_required"
	CodeRateLimited       ErrorCode = "rate_limit_exceeded"
	CodeUpstreamError     ErrorCode = "upstream_provider_error"
	CodeInvalidParams     ErrorCode = "invalid_params"
	CodeInternal          ErrorCode = "internal_error"
)

var (
	ErrToolNotRegistered = errors.New("tool not registered")
	ErrNoTokens          = errors.New("no tokens stored for user and tool")
)

// IntegrationConfig holds per-tool OAuth parameters. Immutable after start.
type IntegrationConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	// ProbeURL is a cheap authenticated endpoint used by connectivity checks.
	ProbeURL string
}

// OAuthTokens is the stored credential for one (user, tool) pair.
type OAuthTokens struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	ObtainedAt   time.Time  `json:"obtained_at"`
}

// Expired reports whether the access token is past its expiry, with a small
// skew so callers refresh slightly early.
func (t *OAuthTokens) Expired() bool {
	if t.ExpiresAt == nil {
		return false
	}
	return time.Now().After(t.ExpiresAt.Add(-30 * time.Second))
}

// ActionSpec describes one action a tool supports.
type ActionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// RateLimit is a per-(user, tool) call quota over a rolling window.
type RateLimit struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// ToolCapabilities is the static descriptor of one tool. Queried, never
// mutated at runtime.
type ToolCapabilities struct {
	ID           ToolID       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Actions      []ActionSpec `json:"actions"`
	RateLimit    *RateLimit   `json:"rate_limit,omitempty"`
	RequiresAuth bool         `json:"requires_auth"`
}

// SupportsAction reports whether the descriptor lists the named action.
func (c ToolCapabilities) SupportsAction(name string) bool {
	for _, a := range c.Actions {
		if a.Name == name {
			return true
		}
	}
	return false
}

// ActionNames returns the names of all supported actions.
func (c ToolCapabilities) ActionNames() []string {
	names := make([]string, 0, len(c.Actions))
	for _, a := range c.Actions {
		names = append(names, a.Name)
	}
	return names
}

// IntegrationStatus is derived on demand, never stored.
type IntegrationStatus struct {
	Tool         ToolID           `json:"tool"`
	Name         string           `json:"name"`
	Status       ConnectionState  `json:"status"`
	LastSynced   *time.Time       `json:"last_synced,omitempty"`
	Capabilities ToolCapabilities `json:"capabilities"`
}

// IntegrationRequest is the uniform contract between any caller and the
// integration router.
type IntegrationRequest struct {
	Tool    ToolID         `json:"tool"`
	Action  string         `json:"action"`
	Params  map[string]any `json:"params"`
	AgentID string         `json:"agent_id,omitempty"`
	UserID  string         `json:"user_id"`
}

// IntegrationError is the structured failure attached to a response. It is a
// wire shape, not a Go error: the router never raises.
type IntegrationError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ResponseMetadata records how a request was served.
type ResponseMetadata struct {
	Tool            ToolID `json:"tool"`
	Action          string `json:"action"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	Cached          bool   `json:"cached"`
}

// IntegrationResponse is the uniform router response. Every outcome,
// including internal errors, is expressed here.
type IntegrationResponse struct {
	Success  bool              `json:"success"`
	Data     map[string]any    `json:"data,omitempty"`
	Error    *IntegrationError `json:"error,omitempty"`
	Metadata ResponseMetadata  `json:"metadata"`
}

// ActionResult is the uniform shape every adapter action resolves to.
type ActionResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    map[string]any    `json:"data,omitempty"`
	Error   *IntegrationError `json:"error,omitempty"`
}

// ConnectResult reports the outcome of an adapter connect/isConnected probe.
type ConnectResult struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}
