package i18n

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

const DefaultLocale = "en"

// supportedLocales is ordered to match the matcher's tag list.
var (
	supportedLocales = []string{"en", "de"}
	matcher          = language.NewMatcher([]language.Tag{language.English, language.German})
)

// LocaleFromRequest picks the email locale for r. An explicit ?lang= wins over
// Accept-Language.
func LocaleFromRequest(r *http.Request) string {
	if r == nil {
		return DefaultLocale
	}
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		return NormalizeLocale(lang)
	}
	return NormalizeLocale(r.Header.Get("Accept-Language"))
}

// NormalizeLocale matches an Accept-Language value, honouring q weights,
// against the supported locales.
func NormalizeLocale(header string) string {
	if strings.TrimSpace(header) == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, confidence := matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	return supportedLocales[idx]
}
