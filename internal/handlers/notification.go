package handlers

import (
	"net/http"

	"github.com/teamtasks/apiserver/internal/services"
)

// MarkReadResponse reports how many notifications changed.
type MarkReadResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Updated int64  `json:"updated"`
}

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	notificationService *services.NotificationService
	errs                errorWriter
}

func NewNotificationHandler(notificationService *services.NotificationService, verbose bool) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, errs: errorWriter{verbose: verbose}}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgNoToken)
		return
	}

	notifications, err := h.notificationService.ListUnread(r.Context(), caller.ID)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// MarkRead handles ?isReadType=all or ?id=<notification>.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgNoToken)
		return
	}

	query := r.URL.Query()
	target, err := services.ParseMarkReadTarget(query.Get("isReadType"), query.Get("id"))
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}

	updated, err := h.notificationService.MarkRead(r.Context(), caller.ID, target)
	if err != nil {
		h.errs.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Status: true, Message: "Done", Updated: updated})
}
