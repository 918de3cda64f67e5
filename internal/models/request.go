package models

// Sender is the fixed identity every transactional email is sent from.
type Sender struct {
	Email string
	Name  string
}

// Recipient is the single addressee of a transactional email.
type Recipient struct {
	Email string
	Name  string
}

// MergeVar is one name/content substitution pair.
type MergeVar struct {
	Name    string `json:"name"`
	Content any    `json:"content"`
}

// TemplateContent is a named content block. The provider requires at least
// one block even when the template defines all content.
type TemplateContent struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// MainContentPlaceholder returns the empty "main" block sent with every
// template request.
func MainContentPlaceholder() []TemplateContent {
	return []TemplateContent{{Name: "main", Content: ""}}
}

// SendRequest is the provider agnostic representation of a templated send.
type SendRequest struct {
	From       Sender
	To         Recipient
	Tags       []string
	TemplateID string
	Content    []TemplateContent
	// MergeVars is nil when the inbound message carried no variables.
	MergeVars []MergeVar
	Activity  string
}
