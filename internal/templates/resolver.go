// Package templates maps an inbound message onto the provider template that
// should render it.
package templates

import (
	"fmt"
	"strings"

	"github.com/example/transactional-email/internal/models"
	"github.com/example/transactional-email/internal/stats"
	"github.com/example/transactional-email/internal/util"
)

// Market suffixes appended to synthesized template names.
const (
	suffixUS       = "US"
	suffixGlobal   = "GL"
	suffixXGlobal  = "XG"
	suffixMexico   = "MX"
	suffixBrazil   = "BR"
	overrideJoiner = "-"
)

type family int

const (
	familyAccount family = iota + 1
	familyCampaign
	familyVote
	familyPassthrough
)

var activityFamilies = map[string]family{
	"user_password":         familyAccount,
	"user_register":         familyAccount,
	"user_welcome":          familyAccount,
	"campaign_signup":       familyCampaign,
	"campaign_reportback":   familyCampaign,
	"vote":                  familyVote,
	"vote_reminder":         familyVote,
	"user_welcome-niche":    familyPassthrough,
	"user_password-niche":   familyPassthrough,
	"campaign_group_signup": familyPassthrough,
}

// Resolution is the outcome of a template lookup. A zero TemplateID means
// the message could not be matched and Reason says why.
type Resolution struct {
	TemplateID string
	Country    string
	Reason     string
}

// Resolved reports whether a template identifier was found.
func (r Resolution) Resolved() bool {
	return r.TemplateID != ""
}

func unresolved(format string, args ...any) Resolution {
	return Resolution{Reason: fmt.Sprintf(format, args...)}
}

// Config is the immutable rule input for a Resolver.
type Config struct {
	HomeCountry        string
	AffiliateCountries []string
	// Overrides maps campaign/event ids to an extra suffix for the US
	// variant of campaign templates.
	Overrides map[string]string
}

// Resolver applies the activity rule table. It holds no per-message state
// and is safe for concurrent use.
type Resolver struct {
	home       string
	affiliates map[string]struct{}
	overrides  map[string]string
	stats      stats.Sink
}

// NewResolver copies cfg so later changes to the caller's maps have no effect.
func NewResolver(cfg Config, sink stats.Sink) *Resolver {
	if sink == nil {
		sink = stats.Nop{}
	}
	home := strings.ToUpper(strings.TrimSpace(cfg.HomeCountry))
	if home == "" {
		home = suffixUS
	}

	affiliates := make(map[string]struct{}, len(cfg.AffiliateCountries))
	for _, c := range cfg.AffiliateCountries {
		if code, err := util.NormalizeCountry(c); err == nil && code != home {
			affiliates[code] = struct{}{}
		}
	}

	overrides := make(map[string]string, len(cfg.Overrides))
	for id, suffix := range cfg.Overrides {
		id = strings.TrimSpace(id)
		suffix = strings.Trim(strings.TrimSpace(suffix), overrideJoiner)
		if id != "" && suffix != "" {
			overrides[id] = suffix
		}
	}

	return &Resolver{
		home:       home,
		affiliates: affiliates,
		overrides:  overrides,
		stats:      sink,
	}
}

// HasOverride reports whether eventID is one of the special campaigns in
// the override table.
func (r *Resolver) HasOverride(eventID string) bool {
	_, ok := r.overrides[strings.TrimSpace(eventID)]
	return ok
}

// Resolve picks the template for msg and records resolution counters.
func (r *Resolver) Resolve(msg *models.InboundMessage) Resolution {
	if msg == nil {
		return unresolved("message is nil")
	}
	res := r.resolve(msg)
	r.record(msg.Activity, res)
	return res
}

func (r *Resolver) resolve(msg *models.InboundMessage) Resolution {
	activity := strings.TrimSpace(msg.Activity)
	fam, ok := activityFamilies[activity]
	if !ok {
		return unresolved("no template rule for activity %q", activity)
	}

	template := msg.TemplateName()
	country := r.country(msg, template)

	// Partner sources own their templates; never localize them.
	if template != "" && strings.TrimSpace(msg.Source) != "" {
		return Resolution{TemplateID: template, Country: country}
	}

	switch fam {
	case familyAccount:
		return r.marketTemplate(activity, template, country)
	case familyCampaign:
		return r.campaignTemplate(msg, activity, template, country)
	case familyVote:
		return r.voteTemplate(msg, activity, template, country)
	default:
		if template == "" {
			return unresolved("activity %q requires an explicit template", activity)
		}
		return Resolution{TemplateID: template, Country: country}
	}
}

// marketTemplate keeps the caller template for markets with localized
// content and falls back to the global variant everywhere else.
func (r *Resolver) marketTemplate(activity, template, country string) Resolution {
	if country == r.home || r.isAffiliate(country) {
		if template == "" {
			return unresolved("activity %q in market %s requires an explicit template", activity, country)
		}
		return Resolution{TemplateID: template, Country: country}
	}
	return Resolution{TemplateID: join(templateBase(activity), suffixGlobal), Country: country}
}

func (r *Resolver) campaignTemplate(msg *models.InboundMessage, activity, template, country string) Resolution {
	base := templateBase(activity)
	switch NormalizeLanguage(msg.CampaignLanguage) {
	case "en":
		if country != r.home {
			return Resolution{TemplateID: join(base, suffixXGlobal), Country: country}
		}
		id := join(base, suffixUS)
		if suffix, ok := r.overrides[msg.EventID.String()]; ok {
			id = join(id, suffix)
		}
		return Resolution{TemplateID: id, Country: country}
	case "en-global":
		return Resolution{TemplateID: join(base, suffixXGlobal), Country: country}
	case "es-mx":
		return Resolution{TemplateID: join(base, suffixMexico), Country: country}
	case "pt-br":
		return Resolution{TemplateID: join(base, suffixBrazil), Country: country}
	default:
		return r.marketTemplate(activity, template, country)
	}
}

func (r *Resolver) voteTemplate(msg *models.InboundMessage, activity, template, country string) Resolution {
	if template != "" {
		return Resolution{TemplateID: template, Country: country}
	}
	app := strings.TrimSpace(msg.ApplicationID)
	if app == "" {
		return unresolved("activity %q without template requires an application id", activity)
	}
	suffix := suffixGlobal
	if country == r.home {
		suffix = suffixUS
	}
	name := "mb-" + app + "-" + strings.TrimPrefix(templateBase(activity), "mb-")
	return Resolution{TemplateID: join(name, suffix), Country: country}
}

// country prefers an explicit user_country, then the template suffix, and
// treats unsuffixed legacy templates as home market.
func (r *Resolver) country(msg *models.InboundMessage, template string) string {
	if code, err := util.NormalizeCountry(msg.UserCountry); err == nil {
		return code
	}
	if code, ok := CountryFromTemplate(template); ok {
		return code
	}
	return r.home
}

func (r *Resolver) isAffiliate(country string) bool {
	_, ok := r.affiliates[country]
	return ok
}

func (r *Resolver) record(activity string, res Resolution) {
	r.stats.Increment(stats.Key("activity", activity), 1)
	if !res.Resolved() {
		r.stats.Increment(stats.InvalidTemplate, 1)
		return
	}
	r.stats.Increment(stats.Key("template", res.TemplateID), 1)
	r.stats.Increment(stats.Key("country", res.Country), 1)
}

func join(name, suffix string) string {
	return name + overrideJoiner + suffix
}
