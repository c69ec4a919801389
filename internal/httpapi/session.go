package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionCookieName — cookie с идентификатором сессии корзины.
	SessionCookieName = "cart_session"

	sessionCookieMaxAge = 30 * 24 * time.Hour
)

type sessionKey struct{}

type sessionInfo struct {
	id string
	// issued — cookie выдана этим запросом, сохранённой корзины у сессии нет.
	issued bool
}

// sessionCookie находит id сессии в cookie или выдаёт новый uuid v4.
// Значение, не являющееся uuid, заменяется новым: ключ хранилища строится из него напрямую.
func sessionCookie(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var info sessionInfo
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.Parse(c.Value); err == nil {
					info.id = parsed.String()
				}
			}

			if info.id == "" {
				info = sessionInfo{id: uuid.NewString(), issued: true}
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    info.id,
					Path:     "/",
					MaxAge:   int(sessionCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, info)))
		})
	}
}

// SessionID возвращает id сессии из контекста запроса.
func SessionID(ctx context.Context) string {
	info, _ := ctx.Value(sessionKey{}).(sessionInfo)
	return info.id
}

// sessionIssued сообщает, что cookie сессии выдана текущим запросом.
func sessionIssued(ctx context.Context) bool {
	info, _ := ctx.Value(sessionKey{}).(sessionInfo)
	return info.issued
}
