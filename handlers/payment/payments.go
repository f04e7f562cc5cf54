package payment

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/middleware"
	"github.com/sahilchouksey/learnhub-api/utils/response"
	"github.com/sahilchouksey/learnhub-api/utils/validation"
)

// PaymentHandler handles order creation and verification requests
type PaymentHandler struct {
	db        *gorm.DB
	payments  *services.PaymentService
	validator *validation.Validator
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(db *gorm.DB, payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		db:        db,
		payments:  payments,
		validator: validation.NewValidator(),
	}
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	CourseID uint `json:"course_id" validate:"required,min=1"`
}

// VerifyOrderRequest represents the checkout callback payload. The
// signature is consumed for verification only and never echoed back.
type VerifyOrderRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required,max=100"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required,max=100"`
	Signature        string `json:"signature" validate:"required,max=200"`
}

// CreateOrder handles POST /api/v1/payments/orders
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.payments.CreateOrder(c.Context(), userID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCourseNotFound):
			return response.Error(c, fiber.StatusNotFound, "Course not found", "COURSE_NOT_FOUND")
		case errors.Is(err, services.ErrCourseUnavailable):
			return response.Error(c, fiber.StatusUnprocessableEntity, "Course is not available for purchase", "COURSE_UNAVAILABLE")
		case errors.Is(err, services.ErrFreeCourse):
			return response.Error(c, fiber.StatusBadRequest, "Course is free and does not require payment", "FREE_COURSE")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return response.Error(c, fiber.StatusConflict, "You are already enrolled in this course", "ALREADY_ENROLLED")
		default:
			return response.ServiceUnavailable(c, "Could not create payment order, please retry")
		}
	}

	return response.Created(c, result)
}

// VerifyOrder handles POST /api/v1/payments/verify
func (h *PaymentHandler) VerifyOrder(c *fiber.Ctx) error {
	if _, ok := middleware.GetUserID(c); !ok {
		return response.Unauthorized(c, "")
	}

	var req VerifyOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	result, err := h.payments.VerifyAndSettle(c.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentNotFound):
			return response.Error(c, fiber.StatusNotFound, "Payment record not found", "PAYMENT_NOT_FOUND")
		case errors.Is(err, services.ErrAlreadyVerified):
			return response.Error(c, fiber.StatusConflict, "Payment has already been verified", "ALREADY_VERIFIED")
		case errors.Is(err, services.ErrInvalidSignature):
			return response.Error(c, fiber.StatusBadRequest, "Payment signature verification failed", "INVALID_SIGNATURE")
		case errors.Is(err, services.ErrSettlementConflict):
			return response.Error(c, fiber.StatusConflict, "Payment settlement conflicted with an existing enrollment", "SETTLEMENT_CONFLICT")
		default:
			return response.InternalServerError(c, "Payment verification failed")
		}
	}

	return response.Success(c, result)
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	payments, total, err := h.payments.ListForUser(c.Context(), userID, page, limit)
	if err != nil {
		return response.InternalServerError(c, "Failed to list payments")
	}

	return response.Paginated(c, payments, response.CalculatePagination(page, limit, total))
}
