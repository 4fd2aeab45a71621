package services

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"admotion_platform/platform/auth"
	"admotion_platform/platform/schema"
	"admotion_platform/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *NotificationService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Get("/list", s.List)
		r.Get("/unread-count", s.UnreadCount)
		r.Post("/{notification_id}/read", s.MarkRead)
		r.Post("/read-all", s.MarkAllRead)
	})

	return r
}

type NotificationInfo struct {
	Id        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *NotificationService) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Where("user_id = ?", user.Id)
	if r.URL.Query().Get("unread") == "true" {
		query = query.Where("read = ?", false)
	}

	var notifications []schema.Notification
	result := query.Order("created_at DESC").Limit(100).Find(&notifications)
	if result.Error != nil {
		slog.Error("sql error listing notifications", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing notifications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]NotificationInfo, 0, len(notifications))
	for _, n := range notifications {
		infos = append(infos, NotificationInfo{
			Id:        n.Id,
			Kind:      n.Kind,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			Read:      n.Read,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

func (s *NotificationService) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var count int64
	result := s.db.Model(&schema.Notification{}).Where("user_id = ? AND read = ?", user.Id, false).Count(&count)
	if result.Error != nil {
		slog.Error("sql error counting notifications", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error counting notifications: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, map[string]int64{"unread": count})
}

func (s *NotificationService) MarkRead(w http.ResponseWriter, r *http.Request) {
	notificationId, err := utils.URLParamUUID(r, "notification_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	result := s.db.Model(&schema.Notification{}).
		Where("id = ? AND user_id = ?", notificationId, user.Id).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if result.Error != nil {
		slog.Error("sql error marking notification read", "notification_id", notificationId, "error", result.Error)
		http.Error(w, fmt.Sprintf("error marking notification read: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}

	utils.WriteSuccess(w)
}

func (s *NotificationService) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	result := s.db.Model(&schema.Notification{}).
		Where("user_id = ? AND read = ?", user.Id, false).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if result.Error != nil {
		slog.Error("sql error marking notifications read", "user_id", user.Id, "error", result.Error)
		http.Error(w, fmt.Sprintf("error marking notifications read: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, map[string]int64{"updated": result.RowsAffected})
}
