package notification

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
)

// NotificationHandler handles notification-related API endpoints
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

// GetNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	unreadOnly := c.Query("unread_only") == "true"
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	notifications, total, err := h.notificationService.ListNotifications(c.Context(), userID, unreadOnly, limit, offset)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch notifications")
	}

	responseData := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		responseData = append(responseData, n.ToResponse())
	}

	return response.Success(c, fiber.Map{
		"notifications": responseData,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// MarkAsRead handles POST /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	notificationID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid notification ID")
	}

	if err := h.notificationService.MarkAsRead(c.Context(), userID, uint(notificationID)); err != nil {
		if err.Error() == "notification not found" {
			return response.NotFound(c, "Notification not found")
		}
		return response.InternalServerError(c, "Failed to mark notification as read")
	}

	return response.Success(c, fiber.Map{
		"message": "Notification marked as read",
	})
}

// MarkAllAsRead handles POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllAsRead(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	if err := h.notificationService.MarkAllAsRead(c.Context(), userID); err != nil {
		return response.InternalServerError(c, "Failed to mark all notifications as read")
	}

	return response.Success(c, fiber.Map{
		"message": "All notifications marked as read",
	})
}
