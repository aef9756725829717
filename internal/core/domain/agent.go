package domain

import "errors"

var ErrAgentNotFound = errors.New("agent not found")

// AgentProfile is the minimal view of an agent the execution engine needs.
// Persona content and response generation live outside this module.
type AgentProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
