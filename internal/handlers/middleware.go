package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/logging"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

const (
	msgNoToken     = "not authorized, no token"
	msgTokenFailed = "not authorized, token failed"
)

// IdentityResolver loads the caller for a verified token subject.
type IdentityResolver interface {
	Identity(ctx context.Context, id int64) (types.Identity, error)
}

// Authenticator turns the session cookie into a request identity.
type Authenticator struct {
	tokens  *auth.TokenService
	users   IdentityResolver
	revoker auth.Revoker
	errs    errorWriter
}

// NewAuthenticator constructs an Authenticator. revoker may be nil.
func NewAuthenticator(tokens *auth.TokenService, users IdentityResolver, revoker auth.Revoker, verbose bool) *Authenticator {
	return &Authenticator{
		tokens:  tokens,
		users:   users,
		revoker: revoker,
		errs:    errorWriter{verbose: verbose},
	}
}

// RequireAuth rejects requests without a valid session for an existing,
// active user.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := auth.TokenFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgNoToken)
			return
		}

		identity, err := a.authenticate(r.Context(), tokenString)
		if err != nil {
			a.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// OptionalAuth attaches the identity when a valid session is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := auth.TokenFromRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.authenticate(r.Context(), tokenString)
		if err != nil {
			if errors.Is(err, services.ErrStoreUnavailable) {
				a.errs.writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

func (a *Authenticator) authenticate(ctx context.Context, tokenString string) (types.Identity, error) {
	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return types.Identity{}, services.ErrUnauthenticated
	}

	if a.revoker != nil {
		revoked, err := a.revoker.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return types.Identity{}, errors.Join(services.ErrStoreUnavailable, err)
		}
		if revoked {
			return types.Identity{}, services.ErrUnauthenticated
		}
	}

	identity, err := a.users.Identity(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return types.Identity{}, services.ErrUnauthenticated
		}
		return types.Identity{}, err
	}
	if !identity.IsActive {
		return types.Identity{}, services.ErrAccountDisabled
	}
	return identity, nil
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		logging.FromContext(r.Context()).Debug("session rejected")
		writeError(w, http.StatusUnauthorized, msgTokenFailed)
	default:
		a.errs.writeServiceError(w, r, err)
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, msgNoToken)
			return
		}
		if !identity.IsAdmin {
			logging.FromContext(r.Context()).Warn("admin route denied", zap.Int64("user_id", identity.ID))
			errorWriter{}.writeServiceError(w, r, services.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
