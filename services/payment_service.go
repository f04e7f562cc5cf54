package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services/gateway"
)

// PaymentService owns the payment lifecycle: PENDING on order creation,
// then exactly one transition to SUCCESS or FAILED at verification.
// Settlement itself is delegated to the EnrollmentService coordinator.
type PaymentService struct {
	db          *gorm.DB
	gateway     *gateway.Client
	enrollments *EnrollmentService
	pendingTTL  time.Duration
	log         *logrus.Entry
}

// NewPaymentService creates a new payment service. pendingTTL bounds how
// long an unverified PENDING order stays live before the expiry sweep
// fails it.
func NewPaymentService(db *gorm.DB, gw *gateway.Client, enrollments *EnrollmentService, pendingTTL time.Duration) *PaymentService {
	return &PaymentService{
		db:          db,
		gateway:     gw,
		enrollments: enrollments,
		pendingTTL:  pendingTTL,
		log:         logrus.WithField("service", "payments"),
	}
}

// OrderResult is returned to the client so it can open the gateway
// checkout for the minted order.
type OrderResult struct {
	PaymentID      uint            `json:"payment_id"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// CreateOrder validates purchase eligibility, mints an order on the
// gateway, and persists the PENDING payment keyed by the gateway order
// id. The gateway call happens first: if it fails or times out, no
// local row is written, so there is never a PENDING payment without a
// corresponding external order.
func (s *PaymentService) CreateOrder(ctx context.Context, userID, courseID uint) (*OrderResult, error) {
	course, err := s.enrollments.EnsureEligible(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	// At most one live PENDING order per (user, course): an un-expired
	// pending payment is handed back instead of minting a competitor.
	var existing model.Payment
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ? AND status = ? AND created_at > ?",
			userID, courseID, model.PaymentStatusPending, time.Now().Add(-s.pendingTTL)).
		First(&existing).
		Error
	if err == nil {
		return &OrderResult{
			PaymentID:      existing.ID,
			GatewayOrderID: existing.GatewayOrderID,
			Amount:         existing.Amount,
			Currency:       existing.Currency,
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check pending payments: %w", err)
	}

	amountMinor := course.Price.Mul(decimal.NewFromInt(100)).IntPart()
	receipt := fmt.Sprintf("crs_%d_usr_%d_%s", courseID, userID, uuid.New().String()[:8])

	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Amount:   amountMinor,
		Currency: course.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"course_id": fmt.Sprintf("%d", courseID),
			"user_id":   fmt.Sprintf("%d", userID),
		},
	})
	if err != nil {
		return nil, err
	}

	payment := model.Payment{
		UserID:         userID,
		CourseID:       courseID,
		Amount:         course.Price,
		Currency:       course.Currency,
		Status:         model.PaymentStatusPending,
		GatewayName:    "razorpay",
		GatewayOrderID: order.ID,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, fmt.Errorf("failed to persist payment record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"event":            "order_created",
		"payment_id":       payment.ID,
		"gateway_order_id": order.ID,
		"user_id":          userID,
		"course_id":        courseID,
		"amount":           course.Price.String(),
	}).Info("payment order created")

	return &OrderResult{
		PaymentID:      payment.ID,
		GatewayOrderID: order.ID,
		Amount:         course.Price,
		Currency:       course.Currency,
	}, nil
}

// VerifyAndSettle checks the checkout callback signature and, on a
// match, hands the payment to the settlement coordinator. Verification
// is not retryable against a terminal payment: replays get
// ErrAlreadyVerified, never re-executed side effects. A tampered
// signature fails the payment with the reason recorded.
func (s *PaymentService) VerifyAndSettle(ctx context.Context, gatewayOrderID, gatewayPaymentID, signature string) (*SettlementResult, error) {
	var payment model.Payment
	err := s.db.WithContext(ctx).
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&payment).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	if payment.IsTerminal() {
		return nil, ErrAlreadyVerified
	}

	if !s.gateway.VerifySignature(gatewayOrderID, gatewayPaymentID, signature) {
		s.enrollments.failPayment(ctx, payment.ID, "invalid signature")
		s.log.WithFields(logrus.Fields{
			"event":            "signature_rejected",
			"payment_id":       payment.ID,
			"gateway_order_id": gatewayOrderID,
		}).Warn("payment signature verification failed")
		return nil, ErrInvalidSignature
	}

	return s.enrollments.SettlePayment(ctx, &payment, gatewayPaymentID)
}

// ListForUser returns a user's payment history, newest first.
func (s *PaymentService) ListForUser(ctx context.Context, userID uint, page, limit int) ([]model.Payment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []model.Payment
	err := query.
		Preload("Course").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&payments).
		Error
	if err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

// ExpireStalePayments fails PENDING payments older than the configured
// TTL. Run by the cron sweep so abandoned checkouts do not sit in a
// non-terminal state forever.
func (s *PaymentService) ExpireStalePayments(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.pendingTTL)
	result := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failure_reason": "order expired",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to expire stale payments: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithFields(logrus.Fields{
			"event":   "payments_expired",
			"expired": result.RowsAffected,
		}).Info("stale pending payments failed by sweep")
	}

	return result.RowsAffected, nil
}
