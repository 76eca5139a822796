// Package i18n localizes API error messages and e-mails in English and French.
// Catalogs are nested JSON files flattened to dot-separated keys at load time.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Supported locales
const (
	LocaleEnglish = "en"
	LocaleFrench  = "fr"
	DefaultLocale = LocaleEnglish
)

var supported = []string{LocaleEnglish, LocaleFrench}

// matcher order decides the fallback: the first tag wins on no match
var matcher = language.NewMatcher([]language.Tag{language.English, language.French})

type localeKey struct{}

var (
	catalogs     map[string]map[string]string
	catalogsOnce sync.Once
)

func loadCatalogs() map[string]map[string]string {
	catalogsOnce.Do(func() {
		catalogs = make(map[string]map[string]string, len(supported))
		for _, locale := range supported {
			flat, err := readCatalog(locale)
			if err != nil {
				// embedded files are checked by the tests; an unreadable one
				// falls back to returning keys
				continue
			}
			catalogs[locale] = flat
		}
	})
	return catalogs
}

func readCatalog(locale string) (map[string]string, error) {
	data, err := messagesFS.ReadFile("messages/" + locale + ".json")
	if err != nil {
		return nil, err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("messages/%s.json: %w", locale, err)
	}
	flat := make(map[string]string)
	flatten("", tree, flat)
	return flat, nil
}

func flatten(prefix string, tree map[string]interface{}, out map[string]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]interface{}:
			flatten(key, val, out)
		}
	}
}

// Localizer translates keys for one locale
type Localizer struct {
	locale string
}

// NewLocalizer returns a localizer; unsupported locales fall back to English
func NewLocalizer(locale string) *Localizer {
	if locale != LocaleEnglish && locale != LocaleFrench {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

// LocalizerFromContext returns the localizer for the request locale
func LocalizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(GetLocaleFromContext(ctx))
}

// T translates key, replacing {name} placeholders from params. Missing keys
// fall back to English, then to the key itself.
func (l *Localizer) T(key string, params ...map[string]string) string {
	all := loadCatalogs()

	msg, ok := all[l.locale][key]
	if !ok {
		msg, ok = all[DefaultLocale][key]
	}
	if !ok {
		return key
	}

	if len(params) > 0 && len(params[0]) > 0 {
		pairs := make([]string, 0, 2*len(params[0]))
		for k, v := range params[0] {
			pairs = append(pairs, "{"+k+"}", v)
		}
		msg = strings.NewReplacer(pairs...).Replace(msg)
	}
	return msg
}

// GetLocale returns the current locale
func (l *Localizer) GetLocale() string {
	return l.locale
}

// WithLocale adds locale to context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// GetLocaleFromContext retrieves locale from context
func GetLocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage returns the supported locale best matching an
// Accept-Language header
func ParseAcceptLanguage(header string) string {
	if header == "" {
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
	return supported[idx]
}

// T translates using the default locale
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TFromContext translates using locale from context
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return LocalizerFromContext(ctx).T(key, params...)
}
