package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/model"
)

// EnrollmentService is the transaction coordinator that makes "payment
// succeeded" and "user is enrolled and credited" indivisible. Every
// settlement runs as one database transaction:
//
//  1. payment PENDING -> SUCCESS (guarded update)
//  2. enrollment created (composite unique index is the race arbiter)
//  3. course enrollment_count incremented
//  4. COURSE_ENROLLMENT ledger entry appended
//
// If any step fails the whole unit rolls back; the system never holds a
// SUCCESS payment without an enrollment, nor the reverse.
type EnrollmentService struct {
	db            *gorm.DB
	notifications *NotificationService
	bonusPoints   int
	log           *logrus.Entry
}

// NewEnrollmentService creates a new enrollment coordinator. bonusPoints
// is the fixed COURSE_ENROLLMENT award credited on each paid enrollment.
func NewEnrollmentService(db *gorm.DB, notifications *NotificationService, bonusPoints int) *EnrollmentService {
	return &EnrollmentService{
		db:            db,
		notifications: notifications,
		bonusPoints:   bonusPoints,
		log:           logrus.WithField("service", "enrollments"),
	}
}

// SettlementResult reports a completed settlement back to the caller.
type SettlementResult struct {
	EnrollmentID  uint   `json:"enrollment_id"`
	PaymentID     uint   `json:"payment_id"`
	CourseID      uint   `json:"course_id"`
	PointsAwarded int    `json:"points_awarded"`
	Status        string `json:"status"`
}

// EnsureEligible checks the order-creation preconditions for a course
// purchase and returns the course on success. No state is mutated.
func (s *EnrollmentService) EnsureEligible(ctx context.Context, userID, courseID uint) (*model.Course, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course %d: %w", courseID, err)
	}

	if !course.IsPurchasable() {
		return nil, ErrCourseUnavailable
	}
	if course.IsFree() {
		return nil, ErrFreeCourse
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to check existing enrollment: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyEnrolled
	}

	return &course, nil
}

// SettlePayment runs the four-step settlement for a verified payment.
// The payment must still be PENDING; a concurrent settlement that gets
// there first leaves RowsAffected == 0 on step 1 and the loser returns
// ErrAlreadyVerified with nothing committed.
func (s *EnrollmentService) SettlePayment(ctx context.Context, payment *model.Payment, gatewayPaymentID string) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Step 1: guarded status transition. The WHERE on status makes
		// this the first line of defence against double settlement.
		update := tx.Model(&model.Payment{}).
			Where("id = ? AND status = ?", payment.ID, model.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":             model.PaymentStatusSuccess,
				"gateway_payment_id": gatewayPaymentID,
				"metadata": datatypes.JSONMap{
					"verified_at": time.Now().UTC().Format(time.RFC3339),
					"gateway":     payment.GatewayName,
				},
			})
		if update.Error != nil {
			return fmt.Errorf("failed to mark payment success: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return ErrAlreadyVerified
		}

		// Step 2: enrollment row. The unique (user_id, course_id) index
		// is the final arbiter against a race with another settlement
		// or a concurrent manual enroll.
		enrollment := model.Enrollment{
			UserID:     payment.UserID,
			CourseID:   payment.CourseID,
			Status:     model.EnrollmentStatusEnrolled,
			EnrolledAt: time.Now().UTC(),
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSettlementConflict
			}
			return fmt.Errorf("failed to create enrollment: %w", err)
		}

		// Step 3: denormalized counter, updated only here so it cannot
		// drift from the enrollments table.
		if err := tx.Model(&model.Course{}).
			Where("id = ?", payment.CourseID).
			UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + ?", 1)).
			Error; err != nil {
			return fmt.Errorf("failed to increment enrollment count: %w", err)
		}

		// Step 4: ledger credit, invisible outside this transaction
		// until commit.
		refType := "enrollment"
		entry := model.PointsLedgerEntry{
			UserID:        payment.UserID,
			SourceCode:    model.PointsSourceCourseEnrollment,
			Points:        s.bonusPoints,
			Description:   "Enrollment bonus",
			ReferenceID:   &enrollment.ID,
			ReferenceType: &refType,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append enrollment ledger entry: %w", err)
		}

		result = &SettlementResult{
			EnrollmentID:  enrollment.ID,
			PaymentID:     payment.ID,
			CourseID:      payment.CourseID,
			PointsAwarded: s.bonusPoints,
			Status:        model.PaymentStatusSuccess,
		}
		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrAlreadyVerified) {
			// The losing or failing settlement leaves the payment FAILED
			// with the reason recorded, never dangling PENDING. The
			// status guard keeps this from touching a SUCCESS payment.
			s.failPayment(ctx, payment.ID, err.Error())
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":      "payment_settlement_failed",
			"payment_id": payment.ID,
			"user_id":    payment.UserID,
			"course_id":  payment.CourseID,
		}).Warn("settlement rolled back")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"event":         "payment_settled",
		"payment_id":    result.PaymentID,
		"enrollment_id": result.EnrollmentID,
		"user_id":       payment.UserID,
		"course_id":     payment.CourseID,
		"points":        result.PointsAwarded,
	}).Info("payment settled")

	s.notifications.NotifyAsyncSafe(ctx, CreateNotificationRequest{
		UserID:   payment.UserID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryEnrollment,
		Title:    "Enrollment confirmed",
		Message:  fmt.Sprintf("Your payment was verified and you are now enrolled. %d points credited.", result.PointsAwarded),
		Metadata: map[string]interface{}{
			"enrollment_id": result.EnrollmentID,
			"payment_id":    result.PaymentID,
		},
	})

	return result, nil
}

// ManualEnroll grants course access without a payment: steps 2-4 of the
// settlement under the same transaction contract, so "no enrollment
// without a ledger entry" holds on this path too. points may be zero;
// the COURSE_ENROLLMENT source is still recorded for auditability.
func (s *EnrollmentService) ManualEnroll(ctx context.Context, adminID, userID, courseID uint, points int) (*model.Enrollment, error) {
	var course model.Course
	if err := s.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course %d: %w", courseID, err)
	}

	var enrollment model.Enrollment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment = model.Enrollment{
			UserID:     userID,
			CourseID:   courseID,
			Status:     model.EnrollmentStatusEnrolled,
			EnrolledAt: time.Now().UTC(),
		}
		if err := tx.Create(&enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyEnrolled
			}
			return fmt.Errorf("failed to create enrollment: %w", err)
		}

		if err := tx.Model(&model.Course{}).
			Where("id = ?", courseID).
			UpdateColumn("enrollment_count", gorm.Expr("enrollment_count + ?", 1)).
			Error; err != nil {
			return fmt.Errorf("failed to increment enrollment count: %w", err)
		}

		refType := "enrollment"
		entry := model.PointsLedgerEntry{
			UserID:        userID,
			SourceCode:    model.PointsSourceCourseEnrollment,
			Points:        points,
			Description:   "Manual enrollment by admin",
			ReferenceID:   &enrollment.ID,
			ReferenceType: &refType,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append enrollment ledger entry: %w", err)
		}

		audit := model.AdminAuditLog{
			AdminID:     adminID,
			Action:      "manual_enroll",
			Resource:    "enrollments",
			ResourceID:  enrollment.ID,
			Description: fmt.Sprintf("Manually enrolled user %d in course %d", userID, courseID),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"event":         "manual_enrollment",
		"enrollment_id": enrollment.ID,
		"admin_id":      adminID,
		"user_id":       userID,
		"course_id":     courseID,
		"points":        points,
	}).Info("manual enrollment created")

	s.notifications.NotifyAsyncSafe(ctx, CreateNotificationRequest{
		UserID:   userID,
		Type:     model.NotificationTypeSuccess,
		Category: model.NotificationCategoryEnrollment,
		Title:    "Course access granted",
		Message:  fmt.Sprintf("You have been enrolled in %s.", course.Title),
	})

	return &enrollment, nil
}

// ListForUser returns a user's enrollments with their courses preloaded.
func (s *EnrollmentService) ListForUser(ctx context.Context, userID uint) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := s.db.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Find(&enrollments).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return enrollments, nil
}

// failPayment records a terminal failure outside the rolled-back
// transaction. The PENDING guard keeps it from clobbering a payment a
// concurrent winner already settled.
func (s *EnrollmentService) failPayment(ctx context.Context, paymentID uint, reason string) {
	err := s.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failure_reason": reason,
		}).Error
	if err != nil {
		s.log.WithError(err).WithField("payment_id", paymentID).Error("failed to mark payment FAILED")
	}
}
