package domain

import "context"

// ElicitAction classifies how a pending elicitation was answered.
type ElicitAction string

const (
	// ElicitAccept means the observer confirmed and may have supplied content.
	ElicitAccept ElicitAction = "accept"
	// ElicitDecline means the observer explicitly refused.
	ElicitDecline ElicitAction = "decline"
	// ElicitCancel means the request was dismissed, timed out or abandoned.
	ElicitCancel ElicitAction = "cancel"
)

// Valid reports whether the action is one of the three known outcomes.
func (a ElicitAction) Valid() bool {
	switch a {
	case ElicitAccept, ElicitDecline, ElicitCancel:
		return true
	}
	return false
}

// ElicitOutcome is the result delivered back into a waiting tool, produced
// exactly once per pending elicitation.
type ElicitOutcome struct {
	Action  ElicitAction   `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

// ElicitFunc lets a tool ask a human a structured question mid-execution and
// suspend until it is answered. The requested schema follows the flat
// JSON-Schema object subset the MCP elicitation flow supports.
type ElicitFunc func(ctx context.Context, message string, requestedSchema map[string]any) (ElicitOutcome, error)
