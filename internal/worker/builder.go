package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/templates"
)

// ErrTemplateUnresolved is returned by Build when no template rule matches.
var ErrTemplateUnresolved = errors.New("worker: template unresolved")

// FirstNameVar is the merge variable holding the recipient's first name.
const FirstNameVar = "FNAME"

// TemplateResolver maps a message onto a template identifier.
type TemplateResolver interface {
	Resolve(msg *models.InboundMessage) templates.Resolution
}

// BuilderConfig carries the fixed send identity.
type BuilderConfig struct {
	Sender           models.Sender
	DefaultFirstName string
}

// Builder turns admitted messages into provider agnostic send requests.
type Builder struct {
	cfg      BuilderConfig
	resolver TemplateResolver
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg BuilderConfig, resolver TemplateResolver) (*Builder, error) {
	if resolver == nil {
		return nil, errors.New("worker: template resolver is required")
	}
	if strings.TrimSpace(cfg.Sender.Email) == "" {
		return nil, errors.New("worker: sender email is required")
	}
	return &Builder{cfg: cfg, resolver: resolver}, nil
}

// Build derives the send request. The input is not modified; the legacy
// template alias is folded on a private copy before resolution.
func (b *Builder) Build(msg *models.InboundMessage) (*models.SendRequest, templates.Resolution, error) {
	if msg == nil {
		return nil, templates.Resolution{}, fmt.Errorf("%w: message is nil", ErrTemplateUnresolved)
	}

	work := msg.Clone()
	work.EmailTemplate = work.TemplateName()
	work.LegacyEmailTemplate = ""

	res := b.resolver.Resolve(work)
	if !res.Resolved() {
		return nil, res, fmt.Errorf("%w: %s", ErrTemplateUnresolved, res.Reason)
	}

	vars := b.mergeVars(work)
	req := &models.SendRequest{
		From:       b.cfg.Sender,
		To:         models.Recipient{Email: work.Email, Name: displayName(work.Email, vars)},
		Tags:       buildTags(work),
		TemplateID: res.TemplateID,
		Content:    models.MainContentPlaceholder(),
		MergeVars:  sortedMergeVars(vars),
		Activity:   work.Activity,
	}
	return req, res, nil
}

// buildTags puts the activity first, followed by tags or, when those are
// empty, email_tags.
func buildTags(msg *models.InboundMessage) []string {
	extra := msg.Tags
	if len(extra) == 0 {
		extra = msg.EmailTags
	}
	tags := make([]string, 0, len(extra)+1)
	tags = append(tags, msg.Activity)
	return append(tags, extra...)
}

// mergeVars returns the final variable map with FNAME filled in, or nil when
// the message carries neither merge vars nor a first name.
func (b *Builder) mergeVars(msg *models.InboundMessage) map[string]any {
	firstName := strings.TrimSpace(msg.FirstName)
	if msg.MergeVars == nil && firstName == "" {
		return nil
	}

	vars := make(map[string]any, len(msg.MergeVars)+1)
	for k, v := range msg.MergeVars {
		vars[k] = v
	}

	if fname, ok := vars[FirstNameVar].(string); ok && strings.TrimSpace(fname) != "" {
		return vars
	}
	switch {
	case firstName != "":
		vars[FirstNameVar] = firstName
	default:
		vars[FirstNameVar] = b.cfg.DefaultFirstName
	}
	return vars
}

func displayName(email string, vars map[string]any) string {
	if fname, ok := vars[FirstNameVar].(string); ok && strings.TrimSpace(fname) != "" {
		return strings.TrimSpace(fname)
	}
	return email
}

func sortedMergeVars(vars map[string]any) []models.MergeVar {
	if vars == nil {
		return nil
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.MergeVar, 0, len(names))
	for _, name := range names {
		out = append(out, models.MergeVar{Name: name, Content: vars[name]})
	}
	return out
}
