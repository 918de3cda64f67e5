package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// InboundMessage is the transactional email request as published on the
// queue by upstream producers.
type InboundMessage struct {
	Email     string         `json:"email"`
	Activity  string         `json:"activity"`
	MergeVars map[string]any `json:"merge_vars,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	EmailTags []string       `json:"email_tags,omitempty"`

	EmailTemplate string `json:"email_template,omitempty"`
	// LegacyEmailTemplate is the old hyphenated field still sent by some
	// producers. It is folded into EmailTemplate before resolution.
	LegacyEmailTemplate string `json:"email-template,omitempty"`

	UserCountry      string     `json:"user_country,omitempty"`
	CampaignLanguage string     `json:"campaign_language,omitempty"`
	EventID          FlexString `json:"event_id,omitempty"`
	ApplicationID    string     `json:"application_id,omitempty"`
	Source           string     `json:"source,omitempty"`
	Transactionals   OptBool    `json:"transactionals,omitempty"`
	FirstName        string     `json:"first_name,omitempty"`

	MailchimpGroupName string `json:"mailchimp_group_name,omitempty"`
}

// DecodeInbound parses a queue payload into an InboundMessage.
func DecodeInbound(payload []byte) (*InboundMessage, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("models: payload is empty")
	}
	var msg InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("models: decode inbound message: %w", err)
	}
	return &msg, nil
}

// TemplateName returns the caller supplied template, preferring the
// canonical field over the legacy alias.
func (m *InboundMessage) TemplateName() string {
	if t := strings.TrimSpace(m.EmailTemplate); t != "" {
		return t
	}
	return strings.TrimSpace(m.LegacyEmailTemplate)
}

// OptedOut reports an explicit transactionals=false.
func (m *InboundMessage) OptedOut() bool {
	return m.Transactionals.Set && !m.Transactionals.Value
}

// Clone returns a deep copy so pipeline stages never share mutable state.
func (m *InboundMessage) Clone() *InboundMessage {
	if m == nil {
		return nil
	}
	clone := *m
	if m.MergeVars != nil {
		clone.MergeVars = make(map[string]any, len(m.MergeVars))
		for k, v := range m.MergeVars {
			clone.MergeVars[k] = v
		}
	}
	clone.Tags = append([]string(nil), m.Tags...)
	clone.EmailTags = append([]string(nil), m.EmailTags...)
	return &clone
}

// FlexString accepts JSON strings and numbers. Event ids arrive as both.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("models: event id must be a string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }

// OptBool distinguishes an absent flag from an explicit false. Producers send
// booleans, 0/1, yes/no, on/off or their string forms. Any other value is
// treated as absent so one bad flag never fails the whole message.
type OptBool struct {
	Set   bool
	Value bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptBool) UnmarshalJSON(data []byte) error {
	raw := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch raw {
	case "yes", "y", "on":
		*o = OptBool{Set: true, Value: true}
		return nil
	case "no", "n", "off":
		*o = OptBool{Set: true, Value: false}
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*o = OptBool{}
		return nil
	}
	*o = OptBool{Set: true, Value: v}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o OptBool) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
