package handlers

import (
	"fmt"
	"net/http"

	"github.com/teamtasks/apiserver/internal/services"
	"github.com/teamtasks/apiserver/types"
)

// ProfileRequest is the body of PUT /profile. ID is only honoured for admins.
type ProfileRequest struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
	Role  string `json:"role"`
}

// ProfileResponse wraps the updated user.
type ProfileResponse struct {
	Status  bool       `json:"status"`
	Message string     `json:"message"`
	User    types.User `json:"user"`
}

// ChangePasswordRequest is the body of PUT /change-password.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

// SetActiveRequest is the body of PUT /{id}.
type SetActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

// UserHandler serves profile and administration endpoints.
type UserHandler struct {
	userService *services.UserService
	errs        errorWriter
}

func NewUserHandler(userService *services.UserService, verbose bool) *UserHandler {
	return &UserHandler{userService: userService, errs: errorWriter{verbose: verbose}}
}

func (h *UserHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	members, err := h.userService.ListTeam(r.Context())
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgNoToken)
		return
	}

	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), caller, services.ProfilePatch{
		ID:    req.ID,
		Name:  req.Name,
		Title: req.Title,
		Role:  req.Role,
	})
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ProfileResponse{
		Status:  true,
		Message: "Profile updated successfully.",
		User:    user,
	})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgNoToken)
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	if err := h.userService.ChangePassword(r.Context(), caller, req.Password); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "Password changed successfully.")
}

func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	var req SetActiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "isActive is required")
		return
	}

	if err := h.userService.SetActive(r.Context(), id, *req.IsActive); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	state := "disabled"
	if *req.IsActive {
		state = "activated"
	}
	writeMessage(w, fmt.Sprintf("User account has been %s", state))
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, "User deleted successfully")
}
