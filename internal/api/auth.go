package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/resourceiq/resourceiq/internal/auth"
	"github.com/resourceiq/resourceiq/internal/user"
)

type currentUserCtxKey struct{}

var ctxKeyCurrentUser = currentUserCtxKey{}

// currentUser retrieves the authenticated user placed in the context by
// authenticator.require. Returns nil and false outside protected routes.
func currentUser(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(ctxKeyCurrentUser).(*user.User)
	return u, ok
}

// isAdmin reports whether the user may act on other users' resources.
func isAdmin(u *user.User) bool {
	return u.IsSuperuser || u.Role.IsAdmin()
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// authenticator guards routes that need a signed-in user.
type authenticator struct {
	tokens *auth.TokenManager
	users  UserStore
	logger *slog.Logger
}

// require wraps a handler with bearer token authentication. The status
// mapping is deliberate: a missing header is 401, a bad token is 403, a
// token for a deleted user is 404, and a disabled account is 400.
func (a *authenticator) require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			WriteError(w, http.StatusUnauthorized, "not_authenticated", "not authenticated", a.logger)
			return
		}

		claims, err := a.tokens.Parse(raw)
		if err != nil {
			WriteError(w, http.StatusForbidden, "invalid_token", auth.ErrInvalidToken.Error(), a.logger)
			return
		}
		id, err := claims.UserID()
		if err != nil {
			WriteError(w, http.StatusForbidden, "invalid_token", auth.ErrInvalidToken.Error(), a.logger)
			return
		}

		u, err := a.users.GetByID(r.Context(), id)
		if errors.Is(err, user.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "user_not_found", "user not found", a.logger)
			return
		}
		if err != nil {
			a.logger.Error("loading authenticated user", "error", err, "user_id", id)
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", a.logger)
			return
		}
		if !u.IsActive {
			WriteError(w, http.StatusBadRequest, "inactive_user", "inactive user", a.logger)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyCurrentUser, u)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin is require plus a privilege gate.
func (a *authenticator) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return a.require(func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r.Context())
		if !isAdmin(u) {
			WriteError(w, http.StatusForbidden, "forbidden", "the user doesn't have enough privileges", a.logger)
			return
		}
		next(w, r)
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// authHandler serves the login endpoints.
type authHandler struct {
	users  UserStore
	tokens *auth.TokenManager
	logger *slog.Logger
}

// accessToken handles POST /api/v1/login/access-token. The body is
// form-encoded (username + password) per the OAuth2 password flow.
func (h *authHandler) accessToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed form body", h.logger)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "username and password are required", h.logger)
		return
	}

	u, err := h.users.Authenticate(r.Context(), username, password)
	if errors.Is(err, user.ErrInvalidCredentials) {
		WriteError(w, http.StatusBadRequest, "invalid_credentials", user.ErrInvalidCredentials.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("authenticating user", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	if !u.IsActive {
		WriteError(w, http.StatusBadRequest, "inactive_user", "inactive user", h.logger)
		return
	}

	token, err := h.tokens.Create(u.ID, u.Role)
	if err != nil {
		h.logger.Error("issuing access token", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// testToken handles POST /api/v1/login/test-token: echoes the user the
// presented token resolves to.
func (h *authHandler) testToken(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	WriteJSON(w, http.StatusOK, u)
}
