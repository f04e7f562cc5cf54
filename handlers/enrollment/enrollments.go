package enrollment

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// EnrollmentHandler handles enrollment listing and the administrative
// manual-enroll entry point into the settlement coordinator.
type EnrollmentHandler struct {
	db          *gorm.DB
	enrollments *services.EnrollmentService
	validator   *validation.Validator
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(db *gorm.DB, enrollments *services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{
		db:          db,
		enrollments: enrollments,
		validator:   validation.NewValidator(),
	}
}

// ManualEnrollRequest represents the admin manual-enroll request body.
// Points defaults to zero: access granted without reward still records
// a COURSE_ENROLLMENT ledger entry for auditability.
type ManualEnrollRequest struct {
	UserID   uint `json:"user_id" validate:"required,min=1"`
	CourseID uint `json:"course_id" validate:"required,min=1"`
	Points   int  `json:"points" validate:"omitempty,min=0,max=100000"`
}

// ListEnrollments handles GET /api/v1/enrollments
func (h *EnrollmentHandler) ListEnrollments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	enrollments, err := h.enrollments.ListForUser(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list enrollments")
	}

	return response.Success(c, enrollments)
}

// ManualEnroll handles POST /api/v1/admin/enrollments
func (h *EnrollmentHandler) ManualEnroll(c *fiber.Ctx) error {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	var req ManualEnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	enrollment, err := h.enrollments.ManualEnroll(c.Context(), adminID, req.UserID, req.CourseID, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCourseNotFound):
			return response.Error(c, fiber.StatusNotFound, "Course not found", "COURSE_NOT_FOUND")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return response.Error(c, fiber.StatusConflict, "User is already enrolled in this course", "ALREADY_ENROLLED")
		default:
			return response.InternalServerError(c, "Failed to enroll user")
		}
	}

	return response.Created(c, enrollment)
}
