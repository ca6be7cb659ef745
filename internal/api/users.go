package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/resourceiq/resourceiq/internal/auth"
	"github.com/resourceiq/resourceiq/internal/user"
)

// UserStore is the slice of the user store the API consumes.
type UserStore interface {
	Create(ctx context.Context, p user.CreateParams) (*user.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	List(ctx context.Context, limit, offset int) ([]*user.User, int, error)
	Update(ctx context.Context, id uuid.UUID, p user.UpdateParams) (*user.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
}

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

type userListResponse struct {
	Data  []*user.User `json:"data"`
	Count int          `json:"count"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userCreateRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	IsActive    *bool  `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
	Role        string `json:"role"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type userUpdateMeRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

type passwordUpdateRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type adminUserUpdateRequest struct {
	Email       *string `json:"email"`
	FullName    *string `json:"full_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	Role        *string `json:"role"`
}

// userHandler serves account management routes.
type userHandler struct {
	users  UserStore
	logger *slog.Logger
}

// checkPassword validates the length bounds enforced at the API boundary.
func checkPassword(pw string) error {
	if len(pw) < minPasswordLen || len(pw) > maxPasswordLen {
		return errors.New("password must be between 8 and 128 characters")
	}
	return nil
}

// list handles GET /api/v1/users/ (admin only).
func (h *userHandler) list(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0, 0, 1<<31-1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	limit, err := queryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	users, count, err := h.users.List(r.Context(), limit, skip)
	if err != nil {
		h.logger.Error("listing users", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, userListResponse{Data: users, Count: count})
}

// create handles POST /api/v1/users/ (admin only).
func (h *userHandler) create(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if !validEmail(req.Email) {
		WriteError(w, http.StatusBadRequest, "validation_error", "a valid email is required", h.logger)
		return
	}
	if err := checkPassword(req.Password); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	role := auth.RoleUser
	if req.Role != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
			return
		}
		role = parsed
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	u, err := h.users.Create(r.Context(), user.CreateParams{
		Email:          req.Email,
		HashedPassword: hash,
		IsActive:       active,
		IsSuperuser:    req.IsSuperuser,
		FullName:       req.FullName,
		Role:           role,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		WriteError(w, http.StatusBadRequest, "email_taken", user.ErrEmailTaken.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("creating user", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// signup handles POST /api/v1/users/signup (open registration).
func (h *userHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if !validEmail(req.Email) {
		WriteError(w, http.StatusBadRequest, "validation_error", "a valid email is required", h.logger)
		return
	}
	if err := checkPassword(req.Password); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	u, err := h.users.Create(r.Context(), user.CreateParams{
		Email:          req.Email,
		HashedPassword: hash,
		IsActive:       true,
		FullName:       req.FullName,
		Role:           auth.RoleUser,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		WriteError(w, http.StatusBadRequest, "email_taken", user.ErrEmailTaken.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("registering user", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// me handles GET /api/v1/users/me.
func (h *userHandler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	WriteJSON(w, http.StatusOK, u)
}

// updateMe handles PATCH /api/v1/users/me.
func (h *userHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req userUpdateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.Email != nil && !validEmail(*req.Email) {
		WriteError(w, http.StatusBadRequest, "validation_error", "a valid email is required", h.logger)
		return
	}

	updated, err := h.users.Update(r.Context(), u.ID, user.UpdateParams{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if errors.Is(err, user.ErrEmailTaken) {
		WriteError(w, http.StatusConflict, "email_taken", user.ErrEmailTaken.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("updating user", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// updateMyPassword handles PATCH /api/v1/users/me/password.
func (h *userHandler) updateMyPassword(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req passwordUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if err := checkPassword(req.NewPassword); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	if !auth.VerifyPassword(req.CurrentPassword, u.HashedPassword) {
		WriteError(w, http.StatusBadRequest, "incorrect_password", "incorrect password", h.logger)
		return
	}
	if req.NewPassword == req.CurrentPassword {
		WriteError(w, http.StatusBadRequest, "validation_error", "new password cannot be the same as the current one", h.logger)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hashing password", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	if err := h.users.UpdatePassword(r.Context(), u.ID, hash); err != nil {
		h.logger.Error("updating password", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "password updated successfully"})
}

// deleteMe handles DELETE /api/v1/users/me. Superusers cannot remove
// their own account.
func (h *userHandler) deleteMe(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())
	if u.IsSuperuser {
		WriteError(w, http.StatusForbidden, "forbidden", "super users are not allowed to delete themselves", h.logger)
		return
	}
	if err := h.users.Delete(r.Context(), u.ID); err != nil {
		h.logger.Error("deleting user", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "user deleted successfully"})
}

// get handles GET /api/v1/users/{id}: self-lookup for everyone,
// arbitrary lookup for admins.
func (h *userHandler) get(w http.ResponseWriter, r *http.Request) {
	cur, _ := currentUser(r.Context())

	id, err := pathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	if id == cur.ID {
		WriteJSON(w, http.StatusOK, cur)
		return
	}
	if !isAdmin(cur) {
		WriteError(w, http.StatusForbidden, "forbidden", "the user doesn't have enough privileges", h.logger)
		return
	}

	u, err := h.users.GetByID(r.Context(), id)
	if errors.Is(err, user.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "user_not_found", user.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("loading user", "error", err, "user_id", id)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// update handles PATCH /api/v1/users/{id} (admin only).
func (h *userHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	var req adminUserUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.Email != nil && !validEmail(*req.Email) {
		WriteError(w, http.StatusBadRequest, "validation_error", "a valid email is required", h.logger)
		return
	}

	params := user.UpdateParams{
		Email:       req.Email,
		FullName:    req.FullName,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
			return
		}
		params.Role = &role
	}
	if req.Password != nil {
		if err := checkPassword(*req.Password); err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.Error("hashing password", "error", err)
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
			return
		}
		params.HashedPassword = &hash
	}

	u, err := h.users.Update(r.Context(), id, params)
	if errors.Is(err, user.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "user_not_found", user.ErrNotFound.Error(), h.logger)
		return
	}
	if errors.Is(err, user.ErrEmailTaken) {
		WriteError(w, http.StatusConflict, "email_taken", user.ErrEmailTaken.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("updating user", "error", err, "user_id", id)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// delete handles DELETE /api/v1/users/{id} (admin only). Admins cannot
// delete their own account through this route.
func (h *userHandler) delete(w http.ResponseWriter, r *http.Request) {
	cur, _ := currentUser(r.Context())

	id, err := pathUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	if id == cur.ID {
		WriteError(w, http.StatusForbidden, "forbidden", "super users are not allowed to delete themselves", h.logger)
		return
	}

	err = h.users.Delete(r.Context(), id)
	if errors.Is(err, user.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "user_not_found", user.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("deleting user", "error", err, "user_id", id)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "user deleted successfully"})
}
