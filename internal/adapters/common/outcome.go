package common

import "unicode/utf8"

// DefaultRawBodyLimit defines the maximum number of characters retained from a
// provider response body when attaching it to an Outcome.
const DefaultRawBodyLimit = 1024

// Status is the provider-agnostic result of a send attempt.
type Status string

const (
	// StatusAccepted means the provider delivered or queued the email.
	StatusAccepted Status = "accepted"
	// StatusRejectedPermanent means the provider declined and a retry
	// cannot help (invalid recipient, bounce history, spam).
	StatusRejectedPermanent Status = "rejected_permanent"
	// StatusRejectedTransient covers provider-side failures such as 5xx.
	StatusRejectedTransient Status = "rejected_transient"
	// StatusUnknown is used when the response carries no interpretable
	// status.
	StatusUnknown Status = "unknown"
)

// Outcome captures the normalized provider response exchanged between the
// email adapter and the outcome handler.
//
// Reason is free text for logs and error records. RejectReason and ErrorName
// are drawn from small fixed sets and are safe to use as counter labels:
// RejectReason holds the provider's per-recipient reject reason, ErrorName
// the class of a failed call.
type Outcome struct {
	Status       Status `json:"status"`
	Reason       string `json:"reason,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	ErrorName    string `json:"error_name,omitempty"`
	Code         int    `json:"code,omitempty"`
	ProviderID   string `json:"provider_id,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

// Rejected reports whether the provider declined the send in either way.
func (o Outcome) Rejected() bool {
	return o.Status == StatusRejectedPermanent || o.Status == StatusRejectedTransient
}

// TruncateRaw trims the supplied string to the specified rune limit. If limit
// is zero or negative it returns an empty string.
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	runes := []rune(raw)
	return string(runes[:limit])
}
