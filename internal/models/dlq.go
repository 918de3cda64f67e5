package models

import (
	"encoding/json"
	"time"
)

// Failure types for dead-letter records.
const (
	FailureTypeMalformed        = "malformed"
	FailureTypeTemplate         = "template"
	FailureTypeProviderRejected = "provider_rejected"
)

// DLQRecord is written for every message the worker gives up on.
type DLQRecord struct {
	ID              string          `json:"id"`
	MessageID       string          `json:"message_id,omitempty"`
	Email           string          `json:"email,omitempty"`
	Activity        string          `json:"activity,omitempty"`
	TemplateID      string          `json:"template_id,omitempty"`
	FailureType     string          `json:"failure_type"`
	Reason          string          `json:"reason"`
	OriginalMessage json.RawMessage `json:"original_message,omitempty"`
	FailedAt        time.Time       `json:"failed_at"`
}

// ErrorCodePlaceholder is sent on every error side-channel record; the
// provider does not supply a numeric code for rejections.
const ErrorCodePlaceholder = "000"

// ErrorRecord notifies downstream systems of a permanently failed send.
type ErrorRecord struct {
	Email  string `json:"email"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Source string `json:"source,omitempty"`
}
