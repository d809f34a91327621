package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nzoschke/dreamsaver/internal/ctxkeys"
	"github.com/nzoschke/dreamsaver/internal/service"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

type notificationResponse struct {
	ID        string     `json:"id"`
	GoalID    string     `json:"goalId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())
	query := r.URL.Query()

	unreadOnly, _ := strconv.ParseBool(query.Get("unread"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	notifications, err := h.notificationService.Notifications(r.Context(), owner.ID, unreadOnly, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationResponse{
			ID:        n.ID,
			GoalID:    n.GoalID,
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	owner := ctxkeys.Owner(r.Context())

	err := h.notificationService.MarkRead(r.Context(), owner.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
