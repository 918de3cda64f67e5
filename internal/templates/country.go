package templates

import (
	"regexp"
	"strings"
)

var templateCountryPattern = regexp.MustCompile(`-([A-Z]{2})$`)

// CountryFromTemplate extracts the trailing country code from names such as
// "mb-user-password-MX". Market codes like GL and XG are returned as-is.
func CountryFromTemplate(template string) (string, bool) {
	m := templateCountryPattern.FindStringSubmatch(strings.TrimSpace(template))
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

// NormalizeLanguage lower-cases a campaign language and unifies separators,
// so "pt_BR" and "PT-br" both become "pt-br".
func NormalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	return strings.ReplaceAll(language, "_", "-")
}

func templateBase(activity string) string {
	return "mb-" + strings.ReplaceAll(strings.TrimSpace(activity), "_", "-")
}
