package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
)

// NotificationService handles user notifications. It is a best-effort
// sink: the commerce core never depends on a notification succeeding.
type NotificationService struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:  db,
		log: logrus.WithField("service", "notifications"),
	}
}

// CreateNotificationRequest represents a request to create a notification
type CreateNotificationRequest struct {
	UserID   uint
	Type     model.NotificationType
	Category model.NotificationCategory
	Title    string
	Message  string
	Metadata map[string]interface{}
}

// CreateNotification creates a new notification for a user
func (s *NotificationService) CreateNotification(ctx context.Context, req CreateNotificationRequest) (*model.UserNotification, error) {
	notification := &model.UserNotification{
		UserID:   req.UserID,
		Type:     req.Type,
		Category: req.Category,
		Title:    req.Title,
		Message:  req.Message,
		Read:     false,
	}

	if req.Metadata != nil {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(metadataJSON)
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	return notification, nil
}

// NotifyAsyncSafe writes a notification and only logs on failure. Used
// by the settlement and points paths after their transactions commit.
func (s *NotificationService) NotifyAsyncSafe(ctx context.Context, req CreateNotificationRequest) {
	if _, err := s.CreateNotification(ctx, req); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id":  req.UserID,
			"category": req.Category,
		}).Warn("failed to write notification")
	}
}

// ListNotifications returns a user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, limit, offset int) ([]model.UserNotification, int64, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).
		Model(&model.UserNotification{}).
		Where("user_id = ?", userID)

	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []model.UserNotification
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&notifications).
		Error
	if err != nil {
		return nil, 0, err
	}

	return notifications, total, nil
}

// MarkAsRead marks a single notification as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID uint) error {
	result := s.db.WithContext(ctx).
		Model(&model.UserNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification as read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification not found")
	}
	return nil
}

// MarkAllAsRead marks all of a user's notifications as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&model.UserNotification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).
		Error
}
