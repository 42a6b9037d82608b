package i18n

import "net/http"

// Middleware puts a localizer in every request context. The viewer's
// configured language wins over the browser's Accept-Language, which is
// only used for messages the configured language lacks.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := NewLocalizer(lang, r.Header.Get("Accept-Language"))
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
