// Package mandrill talks to the Mandrill transactional email API.
package mandrill

import (
	"context"
	"fmt"
)

// Send result statuses reported per recipient.
const (
	StatusSent      = "sent"
	StatusQueued    = "queued"
	StatusScheduled = "scheduled"
	StatusRejected  = "rejected"
	StatusInvalid   = "invalid"
)

// Recipient is one entry of the message "to" list.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
}

// Var is a merge variable.
type Var struct {
	Name    string `json:"name"`
	Content any    `json:"content"`
}

// RecipientVars binds merge variables to one recipient.
type RecipientVars struct {
	Rcpt string `json:"rcpt"`
	Vars []Var  `json:"vars"`
}

// Message is the "message" object of a send-template call.
type Message struct {
	FromEmail string          `json:"from_email"`
	FromName  string          `json:"from_name"`
	To        []Recipient     `json:"to"`
	Tags      []string        `json:"tags,omitempty"`
	MergeVars []RecipientVars `json:"merge_vars,omitempty"`
}

// TemplateContent is a named editable region of a template.
type TemplateContent struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SendResult is returned per recipient by the API.
type SendResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason,omitempty"`
	ID           string `json:"_id"`
}

// APIError is the error document Mandrill returns with non-200 responses.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Status     string `json:"status"`
	Code       int    `json:"code"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Name == "" && e.Message == "" {
		return fmt.Sprintf("mandrill: http %d", e.HTTPStatus)
	}
	return fmt.Sprintf("mandrill: http %d: %s: %s", e.HTTPStatus, e.Name, e.Message)
}

// Provider is the send-template contract implemented by the HTTP client and
// the mock backend.
type Provider interface {
	SendTemplate(ctx context.Context, templateName string, content []TemplateContent, msg *Message) ([]SendResult, error)
}
