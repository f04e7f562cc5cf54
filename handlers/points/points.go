package points

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/cache"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// Leaderboard pages are cached briefly. The ranking is a full table
// aggregation, and staleness of a minute is acceptable for a public view.
const leaderboardCacheTTL = 60 * time.Second

// PointsHandler handles point totals, badges, history, the leaderboard,
// and the admin grant/deduct endpoints.
type PointsHandler struct {
	db        *gorm.DB
	points    *services.PointsService
	cache     *cache.RedisCache // may be nil, caching is best-effort
	validator *validation.Validator
}

// NewPointsHandler creates a new points handler
func NewPointsHandler(db *gorm.DB, points *services.PointsService, redisCache *cache.RedisCache) *PointsHandler {
	return &PointsHandler{
		db:        db,
		points:    points,
		cache:     redisCache,
		validator: validation.NewValidator(),
	}
}

// AdjustPointsRequest represents the admin grant/deduct request body
type AdjustPointsRequest struct {
	UserID uint   `json:"user_id" validate:"required,min=1"`
	Points int    `json:"points" validate:"required,min=1,max=100000"`
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// GetTotal handles GET /api/v1/points/total
func (h *PointsHandler) GetTotal(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	total, err := h.points.TotalFor(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to compute point total")
	}

	return response.Success(c, fiber.Map{"user_id": userID, "total_points": total})
}

// GetBadge handles GET /api/v1/points/badge
func (h *PointsHandler) GetBadge(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	badge, total, err := h.points.BadgeFor(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to resolve badge")
	}

	// A nil badge is a valid state, not an error.
	return response.Success(c, fiber.Map{
		"user_id":      userID,
		"total_points": total,
		"badge":        badge,
	})
}

// GetHistory handles GET /api/v1/points/history
func (h *PointsHandler) GetHistory(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	entries, total, err := h.points.History(c.Context(), userID, page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to load points history")
	}

	return response.Paginated(c, entries, response.CalculatePagination(page, limit, total))
}

type leaderboardPage struct {
	Entries []services.LeaderboardEntry `json:"entries"`
	Total   int64                       `json:"total"`
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (h *PointsHandler) GetLeaderboard(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	cacheKey := fmt.Sprintf("leaderboard:p%d:l%d", page, limit)
	if h.cache != nil {
		var cached leaderboardPage
		if err := h.cache.GetJSON(c.Context(), cacheKey, &cached); err == nil {
			return response.Paginated(c, cached.Entries, response.CalculatePagination(page, limit, cached.Total))
		}
	}

	entries, total, err := h.points.Leaderboard(c.Context(), page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to load leaderboard")
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(c.Context(), cacheKey, leaderboardPage{Entries: entries, Total: total}, leaderboardCacheTTL)
	}

	return response.Paginated(c, entries, response.CalculatePagination(page, limit, total))
}

// GrantPoints handles POST /api/v1/admin/points/grant
func (h *PointsHandler) GrantPoints(c *fiber.Ctx) error {
	return h.adjust(c, true)
}

// DeductPoints handles POST /api/v1/admin/points/deduct
func (h *PointsHandler) DeductPoints(c *fiber.Ctx) error {
	return h.adjust(c, false)
}

func (h *PointsHandler) adjust(c *fiber.Ctx, grant bool) error {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	var req AdjustPointsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var (
		entry interface{}
		err   error
	)
	if grant {
		entry, err = h.points.Grant(c.Context(), adminID, req.UserID, req.Points, req.Reason)
	} else {
		entry, err = h.points.Deduct(c.Context(), adminID, req.UserID, req.Points, req.Reason)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		case errors.Is(err, services.ErrInvalidPoints):
			return response.BadRequest(c, "Points must be a positive integer")
		default:
			return response.InternalServerError(c, "Failed to adjust points")
		}
	}

	return response.Created(c, entry)
}
