package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"slguard/pkg/utils"
)

// Recovery перехватывает panic в обработчике, логирует stack trace и отвечает 500.
// Движок защиты работает в своих горутинах и от паники в API не зависит.
func Recovery(logger *utils.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic in handler",
						utils.String("path", r.URL.Path),
						utils.String("panic", fmt.Sprint(err)),
						utils.String("stack", string(debug.Stack())),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
