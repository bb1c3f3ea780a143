// Package middleware: HTTP-прослойки транспорта чата.
package middleware

import (
	"net/http"
	"strings"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/httputil"
)

// Auth кладёт в контекст личность из "Authorization: Bearer ...".
// В доверенном режиме верификатор пропускает запрос и без заголовка.
func Auth(v identity.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := v.Verify(r.Context(), Bearer(r))
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, domain.PublicMessage(err), nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

// Bearer возвращает токен без префикса или пустую строку.
func Bearer(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
