package mandrill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	common "github.com/example/transactional-email/internal/adapters/common"
)

const (
	// DefaultBaseURL is the public Mandrill API root.
	DefaultBaseURL = "https://mandrillapp.com/api/1.0"

	sendTemplatePath = "/messages/send-template.json"
	maxErrorBody     = 4096
	generalErrorName = "GeneralError"
)

// ClientOption configures the HTTP client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			cl.baseURL = base
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the current
// http.Client, leaving one passed through WithHTTPClient untouched.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			hc := *cl.http
			hc.Timeout = d
			cl.http = &hc
		}
	}
}

// Client implements Provider against the Mandrill HTTP API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient constructs a Mandrill client.
func NewClient(apiKey string, logger zerolog.Logger, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("mandrill: api key is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type sendTemplateRequest struct {
	Key             string            `json:"key"`
	TemplateName    string            `json:"template_name"`
	TemplateContent []TemplateContent `json:"template_content"`
	Message         *Message          `json:"message"`
}

// SendTemplate calls messages/send-template. Transport failures, gateway
// errors and GeneralError documents are wrapped with common.ErrTransient,
// other API errors with common.ErrPermanent.
func (c *Client) SendTemplate(ctx context.Context, templateName string, content []TemplateContent, msg *Message) ([]SendResult, error) {
	if msg == nil {
		return nil, common.WrapPermanent(errors.New("mandrill: message is required"))
	}
	if strings.TrimSpace(templateName) == "" {
		return nil, common.WrapPermanent(errors.New("mandrill: template name is required"))
	}

	body, err := json.Marshal(sendTemplateRequest{
		Key:             c.apiKey,
		TemplateName:    templateName,
		TemplateContent: content,
		Message:         msg,
	})
	if err != nil {
		return nil, common.WrapPermanent(fmt.Errorf("mandrill: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendTemplatePath, bytes.NewReader(body))
	if err != nil {
		return nil, common.WrapPermanent(fmt.Errorf("mandrill: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.WrapTransient(fmt.Errorf("mandrill: send: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("template", templateName).
		Int("http_status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("mandrill send-template responded")

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp)
	}

	var results []SendResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		// The request was accepted at the HTTP level; an unreadable body is
		// reported as an empty result set rather than a failure.
		c.logger.Warn().Err(err).Str("template", templateName).Msg("mandrill: undecodable send-template response")
		return nil, nil
	}
	return results, nil
}

func classifyHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	// Mandrill reports API errors as HTTP 500 with a named JSON document, so
	// the name decides when present and the status code otherwise.
	apiErr := &APIError{HTTPStatus: resp.StatusCode}
	if jsonErr := json.Unmarshal(raw, apiErr); jsonErr == nil && apiErr.Name != "" {
		if strings.EqualFold(apiErr.Name, generalErrorName) {
			return common.WrapTransient(apiErr)
		}
		return common.WrapPermanent(apiErr)
	}

	apiErr.Name = http.StatusText(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(raw))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return common.WrapTransient(apiErr)
	}
	return common.WrapPermanent(apiErr)
}
