package handlers

import (
	"net/http"

	"github.com/teamtasks/apiserver/internal/auth"
	"github.com/teamtasks/apiserver/internal/logging"
	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/types"
	"go.uber.org/zap"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
	Role     string `json:"role"`
	Title    string `json:"title"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthHandler provides session endpoints.
type AuthHandler struct {
	userService *services.UserService
	tokens      *auth.TokenService
	cookie      auth.SessionCookie
	revoker     auth.Revoker
	errs        errorWriter
}

// NewAuthHandler constructs an AuthHandler. revoker may be nil, in which
// case logout only clears the cookie.
func NewAuthHandler(
	userService *services.UserService,
	tokens *auth.TokenService,
	cookie auth.SessionCookie,
	revoker auth.Revoker,
	verbose bool,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		tokens:      tokens,
		cookie:      cookie,
		revoker:     revoker,
		errs:        errorWriter{verbose: verbose},
	}
}

// Register creates an account. A self-registration also starts a session;
// an admin creating a teammate keeps their own.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	var caller *types.Identity
	if identity, ok := IdentityFromContext(r.Context()); ok {
		caller = &identity
	}

	user, err := h.userService.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
		Role:     req.Role,
		Title:    req.Title,
	}, caller)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	logger := logging.FromContext(r.Context()).With(zap.Int64("user_id", user.ID))
	if caller != nil {
		logger.Info("user created", zap.Int64("created_by", caller.ID))
	} else {
		if !h.startSession(w, r, user.ID) {
			return
		}
		logger.Info("user registered")
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	if !h.startSession(w, r, user.ID) {
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout clears the cookie and, when a revocation set is configured,
// revokes the presented token for the rest of its lifetime.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.revoker != nil {
		if tokenString, err := auth.TokenFromRequest(r); err == nil {
			if claims, err := h.tokens.Verify(tokenString); err == nil {
				if err := h.revoker.Revoke(r.Context(), claims.TokenID, claims.ExpiresAt); err != nil {
					h.errs.writeServiceError(w, r, err)
					return
				}
			}
		}
	}

	h.cookie.Clear(w)
	writeMessage(w, "Logout successful")
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID int64) bool {
	token, _, err := h.tokens.Issue(userID)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return false
	}
	h.cookie.Set(w, token)
	return true
}
