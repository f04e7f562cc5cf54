package middleware

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
)

// AdminAuditLog records an audit trail row for an admin mutation. It
// runs after RequireAdmin, which loads the acting user into the context.
// Settlement-path actions audit themselves inside their transaction;
// this middleware covers the catalog and badge configuration endpoints.
func AdminAuditLog(db *gorm.DB, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminUser, ok := c.Locals("user").(*model.User)
		if !ok {
			return c.Next() // Continue without logging if user not found
		}

		// Parse resource ID from params if available
		var resourceID uint
		if id := c.Params("id"); id != "" {
			if parsedID, err := strconv.ParseUint(id, 10, 32); err == nil {
				resourceID = uint(parsedID)
			}
		}

		var oldValue interface{}
		var newValue interface{}

		// Get body for POST/PUT requests
		if c.Method() == "POST" || c.Method() == "PUT" {
			body := c.Body()
			if len(body) > 0 {
				json.Unmarshal(body, &newValue)
			}
		}

		// For DELETE or PUT, capture the existing state
		if resourceID > 0 && (c.Method() == "DELETE" || c.Method() == "PUT") {
			switch resource {
			case "users":
				var user model.User
				if err := db.First(&user, resourceID).Error; err == nil {
					oldValue = user
				}
			case "courses":
				var course model.Course
				if err := db.First(&course, resourceID).Error; err == nil {
					oldValue = course
				}
			case "badges":
				var badge model.BadgeType
				if err := db.First(&badge, resourceID).Error; err == nil {
					oldValue = badge
				}
			}
		}

		// Capture request metadata before c.Next; the fiber context is
		// recycled once the handler chain returns.
		adminID := adminUser.ID
		ipAddress := c.IP()
		userAgent := c.Get("User-Agent")
		description := c.Method() + " " + c.Path()

		// Execute the actual handler
		err := c.Next()

		// Log the action after completion
		go func() {
			oldValueJSON, _ := json.Marshal(oldValue)
			newValueJSON, _ := json.Marshal(newValue)

			auditLog := model.AdminAuditLog{
				AdminID:     adminID,
				Action:      action,
				Resource:    resource,
				ResourceID:  resourceID,
				OldValue:    string(oldValueJSON),
				NewValue:    string(newValueJSON),
				IPAddress:   ipAddress,
				UserAgent:   userAgent,
				Description: description,
			}

			db.Create(&auditLog)
		}()

		return err
	}
}
