package i18n

import (
	"net/http"
)

// Middleware picks the response locale and stores it in the request context.
// A lang query parameter, as carried by setup links in e-mails, wins over
// Accept-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := ParseAcceptLanguage(r.Header.Get("Accept-Language"))
		if lang := r.URL.Query().Get("lang"); lang != "" {
			locale = ParseAcceptLanguage(lang)
		}

		w.Header().Add("Vary", "Accept-Language")
		w.Header().Set("Content-Language", locale)

		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}
