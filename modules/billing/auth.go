package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/movesage/movesage/core"
	bill "github.com/movesage/movesage/pkg/billing"
	"github.com/movesage/movesage/pkg/jwt"
	"github.com/movesage/movesage/pkg/logger"
)

var identityContextKey = core.NewContextKey("billing_identity")

// Claims is the token payload the billing endpoints accept. Subject carries
// the user id; Email is optional and only used to create provider customers.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
}

// IdentityFromContext returns the verified caller identity set by the auth
// middleware.
func IdentityFromContext(ctx context.Context) (bill.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(bill.Identity)
	return id, ok
}

// withIdentity verifies the bearer token and threads the caller identity
// into the request context. Requests without a valid token get 401 before
// any handler runs.
func (s *Service) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := jwt.BearerTokenExtractor(r)
		if err != nil {
			s.unauthorized(w, r)
			return
		}

		var claims Claims
		if err := s.tokens.Parse(token, &claims); err != nil {
			s.unauthorized(w, r)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			s.unauthorized(w, r)
			return
		}

		id := bill.Identity{UserID: userID, Email: claims.Email}
		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) unauthorized(w http.ResponseWriter, r *http.Request) {
	if err := core.JSONError(core.ErrUnauthorized).Render(w, r); err != nil {
		s.log.ErrorContext(r.Context(), "failed to render unauthorized response", logger.Error(err))
	}
}
