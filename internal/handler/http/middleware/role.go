package middleware

import (
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

// RequireOperator requires the operator role
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			response.HandleError(w, jwt.ErrOperatorAccessRequired)
			return
		}

		role, ok := claims["role"].(string)
		if !ok || role != jwt.RoleOperator {
			response.HandleError(w, jwt.ErrOperatorAccessRequired)
			return
		}

		next.ServeHTTP(w, r)
	})
}
