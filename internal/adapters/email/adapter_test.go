package email_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/example/transactional-email/internal/adapters/common"
	emailadapter "github.com/example/transactional-email/internal/adapters/email"
	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/providers/mandrill"
)

type stubProvider struct {
	results []mandrill.SendResult
	err     error

	calls    int
	template string
	content  []mandrill.TemplateContent
	msg      *mandrill.Message
}

func (s *stubProvider) SendTemplate(_ context.Context, templateName string, content []mandrill.TemplateContent, msg *mandrill.Message) ([]mandrill.SendResult, error) {
	s.calls++
	s.template = templateName
	s.content = content
	s.msg = msg
	return s.results, s.err
}

func sendRequest() *models.SendRequest {
	return &models.SendRequest{
		From:       models.Sender{Email: "no-reply@dosomething.org", Name: "DoSomething.org"},
		To:         models.Recipient{Email: "a@b.com", Name: "Sam"},
		Tags:       []string{"user_password", "reset"},
		TemplateID: "mb-user-password-US",
		Content:    models.MainContentPlaceholder(),
		MergeVars:  []models.MergeVar{{Name: "FNAME", Content: "Sam"}, {Name: "URL", Content: "https://x"}},
		Activity:   "user_password",
	}
}

func newAdapter(t *testing.T, p mandrill.Provider) *emailadapter.Adapter {
	t.Helper()
	a, err := emailadapter.NewAdapter(p, zerolog.Nop())
	require.NoError(t, err)
	return a
}

func TestNewAdapterRequiresProvider(t *testing.T) {
	_, err := emailadapter.NewAdapter(nil, zerolog.Nop())
	require.Error(t, err)
}

func TestSendBuildsProviderPayload(t *testing.T) {
	p := &stubProvider{results: []mandrill.SendResult{{Email: "a@b.com", Status: "sent", ID: "id-1"}}}
	out := newAdapter(t, p).Send(context.Background(), sendRequest())

	assert.Equal(t, common.StatusAccepted, out.Status)
	assert.Equal(t, "id-1", out.ProviderID)
	assert.NotEmpty(t, out.Raw)

	require.Equal(t, 1, p.calls)
	assert.Equal(t, "mb-user-password-US", p.template)
	assert.Equal(t, []mandrill.TemplateContent{{Name: "main", Content: ""}}, p.content)
	assert.Equal(t, "no-reply@dosomething.org", p.msg.FromEmail)
	assert.Equal(t, "DoSomething.org", p.msg.FromName)
	assert.Equal(t, []mandrill.Recipient{{Email: "a@b.com", Name: "Sam", Type: "to"}}, p.msg.To)
	assert.Equal(t, []string{"user_password", "reset"}, p.msg.Tags)
	require.Len(t, p.msg.MergeVars, 1)
	assert.Equal(t, "a@b.com", p.msg.MergeVars[0].Rcpt)
	assert.Equal(t, []mandrill.Var{{Name: "FNAME", Content: "Sam"}, {Name: "URL", Content: "https://x"}}, p.msg.MergeVars[0].Vars)
}

func TestSendOmitsMergeVarsWhenAbsent(t *testing.T) {
	p := &stubProvider{results: []mandrill.SendResult{{Email: "a@b.com", Status: "queued"}}}
	req := sendRequest()
	req.MergeVars = nil

	out := newAdapter(t, p).Send(context.Background(), req)
	assert.Equal(t, common.StatusAccepted, out.Status)
	assert.Nil(t, p.msg.MergeVars)
}

func TestSendClassifiesResults(t *testing.T) {
	cases := []struct {
		name    string
		results []mandrill.SendResult
		status  common.Status
		reason  string
	}{
		{name: "scheduled", results: []mandrill.SendResult{{Email: "a@b.com", Status: "scheduled"}}, status: common.StatusAccepted},
		{name: "soft bounce", results: []mandrill.SendResult{{Email: "a@b.com", Status: "rejected", RejectReason: "soft-bounce"}}, status: common.StatusRejectedPermanent, reason: "soft-bounce"},
		{name: "rejected without reason", results: []mandrill.SendResult{{Email: "a@b.com", Status: "rejected"}}, status: common.StatusRejectedPermanent, reason: "rejected"},
		{name: "invalid", results: []mandrill.SendResult{{Email: "a@b.com", Status: "invalid"}}, status: common.StatusRejectedPermanent, reason: "invalid"},
		{name: "no results", results: nil, status: common.StatusUnknown},
		{name: "blank status", results: []mandrill.SendResult{{Email: "a@b.com"}}, status: common.StatusUnknown},
		{
			name: "picks matching recipient",
			results: []mandrill.SendResult{
				{Email: "other@b.com", Status: "sent"},
				{Email: "A@B.com", Status: "rejected", RejectReason: "spam"},
			},
			status: common.StatusRejectedPermanent,
			reason: "spam",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubProvider{results: tc.results}
			out := newAdapter(t, p).Send(context.Background(), sendRequest())
			assert.Equal(t, tc.status, out.Status)
			assert.Equal(t, tc.reason, out.Reason)
			assert.Equal(t, tc.reason, out.RejectReason)
			assert.Empty(t, out.ErrorName)
		})
	}
}

func TestSendMapsProviderErrors(t *testing.T) {
	transient := common.WrapTransient(&mandrill.APIError{HTTPStatus: http.StatusBadGateway, Name: "Bad Gateway"})
	out := newAdapter(t, &stubProvider{err: transient}).Send(context.Background(), sendRequest())
	assert.Equal(t, common.StatusRejectedTransient, out.Status)
	assert.Equal(t, http.StatusBadGateway, out.Code)
	assert.Contains(t, out.Reason, "Bad Gateway")
	assert.Equal(t, "Bad Gateway", out.ErrorName)
	assert.Empty(t, out.RejectReason)

	permanent := common.WrapPermanent(errors.New("Unknown_Template"))
	out = newAdapter(t, &stubProvider{err: permanent}).Send(context.Background(), sendRequest())
	assert.Equal(t, common.StatusRejectedPermanent, out.Status)
	assert.Zero(t, out.Code)
	assert.Equal(t, emailadapter.ErrorNameInvalidRequest, out.ErrorName)

	out = newAdapter(t, &stubProvider{err: common.WrapTransient(errors.New("dial tcp 10.0.0.1:443: connection refused"))}).Send(context.Background(), sendRequest())
	assert.Equal(t, emailadapter.ErrorNameTransport, out.ErrorName)
}

func TestSendErrorNameIgnoresErrorDetail(t *testing.T) {
	transport := httpmock.NewMockTransport()
	client, err := mandrill.NewClient("test-key", zerolog.Nop(),
		mandrill.WithHTTPClient(&http.Client{Transport: transport}),
		mandrill.WithBaseURL("https://mandrill.test/api/1.0"),
	)
	require.NoError(t, err)
	a := newAdapter(t, client)

	sent := 0
	transport.RegisterResponder(http.MethodPost, "https://mandrill.test/api/1.0/messages/send-template.json",
		func(*http.Request) (*http.Response, error) {
			sent++
			return httpmock.NewJsonResponse(http.StatusInternalServerError, map[string]any{
				"status":  "error",
				"code":    5,
				"name":    "Unknown_Template",
				"message": fmt.Sprintf("No such template \"tpl-%d\"", sent),
			})
		})

	first := a.Send(context.Background(), sendRequest())
	second := a.Send(context.Background(), sendRequest())

	assert.NotEqual(t, first.Reason, second.Reason)
	assert.Equal(t, "Unknown_Template", first.ErrorName)
	assert.Equal(t, first.ErrorName, second.ErrorName)
	assert.Empty(t, first.RejectReason)
	assert.Equal(t, http.StatusInternalServerError, first.Code)
}

func TestSendWithMockProvider(t *testing.T) {
	p := mandrill.NewMockProvider(zerolog.Nop(), mandrill.WithLatencyRange(0, 0), mandrill.WithRandomSeed(1))
	a := newAdapter(t, p)

	req := sendRequest()
	req.To.Email = "a+hard-bounce@b.com"
	out := a.Send(context.Background(), req)
	assert.Equal(t, common.StatusRejectedPermanent, out.Status)
	assert.Equal(t, "hard-bounce", out.Reason)
	assert.Equal(t, "hard-bounce", out.RejectReason)

	req.To.Email = "a+transient@b.com"
	out = a.Send(context.Background(), req)
	assert.Equal(t, common.StatusRejectedTransient, out.Status)
}

func TestSendNilRequest(t *testing.T) {
	p := &stubProvider{}
	out := newAdapter(t, p).Send(context.Background(), nil)
	assert.Equal(t, common.StatusRejectedPermanent, out.Status)
	assert.Zero(t, p.calls)
}
