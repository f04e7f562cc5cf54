package badge

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// BadgeHandler handles badge tier configuration (admin only) and the
// public tier listing. The non-overlapping range invariant is
// maintained here, at configuration time, not in the resolver.
type BadgeHandler struct {
	db        *gorm.DB
	validator *validation.Validator
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(db *gorm.DB) *BadgeHandler {
	return &BadgeHandler{
		db:        db,
		validator: validation.NewValidator(),
	}
}

// CreateBadgeRequest represents the request body for creating a badge tier
type CreateBadgeRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	MinPoints  int    `json:"min_points" validate:"min=0"`
	MaxPoints  *int   `json:"max_points" validate:"omitempty,min=0"`
	LevelOrder int    `json:"level_order" validate:"required,min=1"`
	IsActive   *bool  `json:"is_active"`
}

// UpdateBadgeRequest represents the request body for updating a badge tier
type UpdateBadgeRequest struct {
	Name       string `json:"name" validate:"omitempty,min=2,max=100"`
	MinPoints  *int   `json:"min_points" validate:"omitempty,min=0"`
	MaxPoints  *int   `json:"max_points" validate:"omitempty,min=0"`
	LevelOrder *int   `json:"level_order" validate:"omitempty,min=1"`
	IsActive   *bool  `json:"is_active"`
}

// ListBadges handles GET /api/v1/badges
func (h *BadgeHandler) ListBadges(c *fiber.Ctx) error {
	var badges []model.BadgeType
	err := h.db.
		Where("is_active = ?", true).
		Order("level_order ASC").
		Find(&badges).
		Error
	if err != nil {
		return response.InternalServerError(c, "Failed to list badges")
	}

	return response.Success(c, badges)
}

// CreateBadge handles POST /api/v1/admin/badges
func (h *BadgeHandler) CreateBadge(c *fiber.Ctx) error {
	var req CreateBadgeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}
	if req.MaxPoints != nil && *req.MaxPoints < req.MinPoints {
		return response.BadRequest(c, "max_points must be greater than or equal to min_points")
	}

	badge := model.BadgeType{
		Name:       req.Name,
		MinPoints:  req.MinPoints,
		MaxPoints:  req.MaxPoints,
		LevelOrder: req.LevelOrder,
		IsActive:   true,
	}
	if req.IsActive != nil {
		badge.IsActive = *req.IsActive
	}

	if err := h.db.Create(&badge).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return response.Conflict(c, "A badge with this name already exists")
		}
		return response.InternalServerError(c, "Failed to create badge")
	}

	return response.Created(c, badge)
}

// UpdateBadge handles PUT /api/v1/admin/badges/:id
func (h *BadgeHandler) UpdateBadge(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid badge ID")
	}

	var badge model.BadgeType
	if err := h.db.First(&badge, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Badge not found")
		}
		return response.InternalServerError(c, "Failed to load badge")
	}

	var req UpdateBadgeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	if req.Name != "" {
		badge.Name = req.Name
	}
	if req.MinPoints != nil {
		badge.MinPoints = *req.MinPoints
	}
	if req.MaxPoints != nil {
		badge.MaxPoints = req.MaxPoints
	}
	if req.LevelOrder != nil {
		badge.LevelOrder = *req.LevelOrder
	}
	if req.IsActive != nil {
		badge.IsActive = *req.IsActive
	}
	if badge.MaxPoints != nil && *badge.MaxPoints < badge.MinPoints {
		return response.BadRequest(c, "max_points must be greater than or equal to min_points")
	}

	if err := h.db.Save(&badge).Error; err != nil {
		return response.InternalServerError(c, "Failed to update badge")
	}

	return response.Success(c, badge)
}
