package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"slguard/pkg/crypto"
)

// TokenAuth - проверка Bearer-токена ops API по bcrypt-хешу (API_TOKEN_HASH).
//
// Пустой хеш отключает проверку: API доступно без авторизации,
// это допустимо только при запуске на localhost.
//
// bcrypt дорогой, поэтому последний принятый токен запоминается
// и дальше сравнивается за константное время.
func TokenAuth(hash string) func(http.Handler) http.Handler {
	var (
		mu       sync.RWMutex
		accepted string
	)

	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="slguard"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			mu.RLock()
			known := accepted != "" && subtle.ConstantTimeCompare([]byte(token), []byte(accepted)) == 1
			mu.RUnlock()

			if !known {
				if err := crypto.VerifyToken(token, hash); err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer realm="slguard"`)
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				mu.Lock()
				accepted = token
				mu.Unlock()
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken достаёт токен из Authorization: Bearer <token>.
// Для WebSocket допускается query-параметр token: браузер не умеет ставить заголовок.
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):]), true
		}
		return "", false
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, true
	}
	return "", false
}
