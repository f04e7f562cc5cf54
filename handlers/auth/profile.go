package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
)

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	Name string `json:"name,omitempty"`
}

// ProfileResponse is the profile view: user data plus the ledger-derived
// point total and the badge tier it resolves to.
type ProfileResponse struct {
	User        UserResponse     `json:"user"`
	TotalPoints int              `json:"total_points"`
	Badge       *model.BadgeType `json:"badge"`
}

// GetProfile retrieves the current user's profile with points and badge
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	badge, total, err := h.points.BadgeFor(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve points")
	}

	return response.Success(c, ProfileResponse{
		User:        toUserResponse(&user),
		TotalPoints: total,
		Badge:       badge,
	})
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return response.NotFound(c, "User not found")
	}

	if req.Name != "" {
		user.Name = req.Name
	}

	if err := h.db.Save(&user).Error; err != nil {
		return response.InternalServerError(c, "Failed to update profile")
	}

	return response.Success(c, toUserResponse(&user))
}
