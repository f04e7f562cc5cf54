package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services/gateway"
)

// settlementTestContext holds everything a settlement test needs: a real
// Postgres connection and the full service stack wired the same way the
// router wires it.
type settlementTestContext struct {
	db          *gorm.DB
	gateway     *gateway.Client
	points      *PointsService
	enrollments *EnrollmentService
	payments    *PaymentService
}

const testBonusPoints = 50

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupSettlementTest(t *testing.T) *settlementTestContext {
	t.Helper()

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		getEnvOrDefault("DB_HOST", "localhost"),
		getEnvOrDefault("DB_USER_NAME", "postgres"),
		getEnvOrDefault("DB_PASSWORD", "postgres"),
		getEnvOrDefault("DB_NAME", "learnhub_test"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_SSL_MODE", "disable"),
	)

	// TranslateError must match production: the settlement path relies on
	// gorm.ErrDuplicatedKey for unique violations.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.Payment{},
		&model.Enrollment{},
		&model.PointsLedgerEntry{},
		&model.BadgeType{},
		&model.UserNotification{},
		&model.AdminAuditLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}

	gw, err := gateway.NewClient(gateway.Config{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
	})
	if err != nil {
		t.Fatalf("failed to create gateway client: %v", err)
	}

	notifications := NewNotificationService(db)
	points := NewPointsService(db)
	enrollments := NewEnrollmentService(db, notifications, testBonusPoints)
	payments := NewPaymentService(db, gw, enrollments, 30*time.Minute)

	return &settlementTestContext{
		db:          db,
		gateway:     gw,
		points:      points,
		enrollments: enrollments,
		payments:    payments,
	}
}

func (tc *settlementTestContext) createUser(t *testing.T) *model.User {
	t.Helper()
	user := &model.User{
		Email:        fmt.Sprintf("settle-%s@test.local", uuid.New().String()[:8]),
		PasswordHash: "x",
		Name:         "Settlement Test User",
		Role:         "student",
	}
	if err := tc.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	t.Cleanup(func() { tc.db.Unscoped().Delete(user) })
	return user
}

func (tc *settlementTestContext) createCourse(t *testing.T, price string) *model.Course {
	t.Helper()
	amount, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("bad price %q: %v", price, err)
	}
	course := &model.Course{
		Title:    "Settlement Test Course",
		Slug:     "settle-test-" + uuid.New().String()[:8],
		Price:    amount,
		Currency: "INR",
		Status:   model.CourseStatusPublished,
		IsActive: true,
	}
	if err := tc.db.Create(course).Error; err != nil {
		t.Fatalf("failed to create test course: %v", err)
	}
	t.Cleanup(func() { tc.db.Unscoped().Delete(course) })
	return course
}

func (tc *settlementTestContext) createPendingPayment(t *testing.T, user *model.User, course *model.Course) *model.Payment {
	t.Helper()
	payment := &model.Payment{
		UserID:         user.ID,
		CourseID:       course.ID,
		Amount:         course.Price,
		Currency:       course.Currency,
		Status:         model.PaymentStatusPending,
		GatewayName:    "razorpay",
		GatewayOrderID: "order_" + uuid.New().String()[:12],
	}
	if err := tc.db.Create(payment).Error; err != nil {
		t.Fatalf("failed to create pending payment: %v", err)
	}
	t.Cleanup(func() { tc.db.Unscoped().Delete(payment) })
	return payment
}

func TestSettlePaymentHappyPath(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	paymentID := "pay_" + uuid.New().String()[:12]
	sig := tc.gateway.SignPayload(payment.GatewayOrderID, paymentID)

	result, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig)
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}
	if result.PointsAwarded != testBonusPoints {
		t.Errorf("expected %d points awarded, got %d", testBonusPoints, result.PointsAwarded)
	}

	// Payment is SUCCESS with the gateway payment id recorded
	var settled model.Payment
	if err := tc.db.First(&settled, payment.ID).Error; err != nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if settled.Status != model.PaymentStatusSuccess {
		t.Errorf("expected SUCCESS, got %s", settled.Status)
	}
	if settled.GatewayPaymentID == nil || *settled.GatewayPaymentID != paymentID {
		t.Errorf("gateway payment id not recorded")
	}

	// Enrollment exists
	var enrollCount int64
	tc.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		Count(&enrollCount)
	if enrollCount != 1 {
		t.Errorf("expected 1 enrollment, got %d", enrollCount)
	}

	// Counter incremented
	var reloaded model.Course
	tc.db.First(&reloaded, course.ID)
	if reloaded.EnrollmentCount != 1 {
		t.Errorf("expected enrollment_count 1, got %d", reloaded.EnrollmentCount)
	}

	// Ledger credited and the total matches the sum of rows
	total, err := tc.points.TotalFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to compute total: %v", err)
	}
	if total != testBonusPoints {
		t.Errorf("expected ledger total %d, got %d", testBonusPoints, total)
	}
}

func TestSettlePaymentReplayIsRejected(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	paymentID := "pay_" + uuid.New().String()[:12]
	sig := tc.gateway.SignPayload(payment.GatewayOrderID, paymentID)

	if _, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}

	// Replaying the same callback must not re-execute side effects
	_, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified on replay, got %v", err)
	}

	total, _ := tc.points.TotalFor(ctx, user.ID)
	if total != testBonusPoints {
		t.Errorf("replay changed ledger total: expected %d, got %d", testBonusPoints, total)
	}

	var reloaded model.Course
	tc.db.First(&reloaded, course.ID)
	if reloaded.EnrollmentCount != 1 {
		t.Errorf("replay changed enrollment_count: got %d", reloaded.EnrollmentCount)
	}
}

func TestConcurrentSettlementSingleWinner(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "799.00")
	payment := tc.createPendingPayment(t, user, course)

	paymentID := "pay_" + uuid.New().String()[:12]
	sig := tc.gateway.SignPayload(payment.GatewayOrderID, paymentID)

	const attempts = 5
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrAlreadyVerified) {
			t.Errorf("unexpected settlement error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning settlement, got %d", winners)
	}

	var enrollCount int64
	tc.db.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", user.ID, course.ID).
		Count(&enrollCount)
	if enrollCount != 1 {
		t.Errorf("expected 1 enrollment after race, got %d", enrollCount)
	}

	total, _ := tc.points.TotalFor(ctx, user.ID)
	if total != testBonusPoints {
		t.Errorf("expected single bonus credit after race, got total %d", total)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	_, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, "pay_fake", "deadbeef")
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// The payment is failed with the reason recorded, and stays terminal
	var failed model.Payment
	tc.db.First(&failed, payment.ID)
	if failed.Status != model.PaymentStatusFailed {
		t.Errorf("expected FAILED, got %s", failed.Status)
	}
	if failed.FailureReason == nil || *failed.FailureReason != "invalid signature" {
		t.Errorf("failure reason not recorded")
	}

	// No enrollment, no points
	var enrollCount int64
	tc.db.Model(&model.Enrollment{}).Where("user_id = ?", user.ID).Count(&enrollCount)
	if enrollCount != 0 {
		t.Errorf("tampered signature produced an enrollment")
	}
	total, _ := tc.points.TotalFor(ctx, user.ID)
	if total != 0 {
		t.Errorf("tampered signature credited points: %d", total)
	}
}

func TestFailedStatusWriteIsLogged(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	hook := logtest.NewGlobal()
	defer hook.Reset()

	// Same stack over a second connection that is closed underneath it,
	// so the FAILED status write hits a real store error.
	broken := setupSettlementTest(t)
	sqlDB, err := broken.db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}

	broken.enrollments.failPayment(ctx, payment.ID, "invalid signature")

	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "failed to mark payment FAILED" {
			found = true
		}
	}
	if !found {
		t.Error("expected the failed status write to be logged at error level")
	}

	// The write never landed, so the payment is still PENDING and a later
	// verify against a healthy connection can still fail it properly.
	var reloaded model.Payment
	if err := tc.db.First(&reloaded, payment.ID).Error; err != nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if reloaded.Status != model.PaymentStatusPending {
		t.Fatalf("expected PENDING after failed write, got %s", reloaded.Status)
	}

	if _, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, "pay_fake", "deadbeef"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	tc.db.First(&reloaded, payment.ID)
	if reloaded.Status != model.PaymentStatusFailed {
		t.Errorf("expected FAILED after healthy verify, got %s", reloaded.Status)
	}
}

func TestManualEnrollThenSettleConflicts(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	admin := tc.createUser(t)
	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	if _, err := tc.enrollments.ManualEnroll(ctx, admin.ID, user.ID, course.ID, 10); err != nil {
		t.Fatalf("manual enroll failed: %v", err)
	}

	// A later settlement for the same (user, course) hits the unique
	// index and rolls back; the payment ends FAILED, not dangling.
	paymentID := "pay_" + uuid.New().String()[:12]
	sig := tc.gateway.SignPayload(payment.GatewayOrderID, paymentID)

	_, err := tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig)
	if !errors.Is(err, ErrSettlementConflict) {
		t.Fatalf("expected ErrSettlementConflict, got %v", err)
	}

	var failed model.Payment
	tc.db.First(&failed, payment.ID)
	if failed.Status != model.PaymentStatusFailed {
		t.Errorf("conflicted payment should be FAILED, got %s", failed.Status)
	}

	// Only the manual enrollment's points exist
	total, _ := tc.points.TotalFor(ctx, user.ID)
	if total != 10 {
		t.Errorf("expected 10 points from manual enroll only, got %d", total)
	}

	var reloaded model.Course
	tc.db.First(&reloaded, course.ID)
	if reloaded.EnrollmentCount != 1 {
		t.Errorf("expected enrollment_count 1, got %d", reloaded.EnrollmentCount)
	}
}

func TestManualEnrollDuplicateReturnsAlreadyEnrolled(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	admin := tc.createUser(t)
	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")

	if _, err := tc.enrollments.ManualEnroll(ctx, admin.ID, user.ID, course.ID, 0); err != nil {
		t.Fatalf("manual enroll failed: %v", err)
	}
	_, err := tc.enrollments.ManualEnroll(ctx, admin.ID, user.ID, course.ID, 0)
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}
}

func TestGrantAndDeductKeepLedgerAppendOnly(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	admin := tc.createUser(t)
	user := tc.createUser(t)

	if _, err := tc.points.Grant(ctx, admin.ID, user.ID, 50, "challenge winner"); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if _, err := tc.points.Deduct(ctx, admin.ID, user.ID, 20, "rule violation"); err != nil {
		t.Fatalf("deduct failed: %v", err)
	}

	total, err := tc.points.TotalFor(ctx, user.ID)
	if err != nil {
		t.Fatalf("failed to compute total: %v", err)
	}
	if total != 30 {
		t.Errorf("expected total 30, got %d", total)
	}

	// The deduct is a second signed row, not a mutation of the first
	var entries []model.PointsLedgerEntry
	tc.db.Where("user_id = ?", user.ID).Order("id ASC").Find(&entries)
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(entries))
	}
	if entries[0].Points != 50 || entries[0].SourceCode != model.PointsSourceAdminGrant {
		t.Errorf("unexpected grant row: %+v", entries[0])
	}
	if entries[1].Points != -20 || entries[1].SourceCode != model.PointsSourceAdminDeduct {
		t.Errorf("unexpected deduct row: %+v", entries[1])
	}
}

func TestExpireStalePayments(t *testing.T) {
	skipUnlessIntegration(t)
	tc := setupSettlementTest(t)
	ctx := context.Background()

	user := tc.createUser(t)
	course := tc.createCourse(t, "499.00")
	payment := tc.createPendingPayment(t, user, course)

	// Backdate past the TTL
	stale := time.Now().Add(-2 * time.Hour)
	tc.db.Model(&model.Payment{}).Where("id = ?", payment.ID).UpdateColumn("created_at", stale)

	expired, err := tc.payments.ExpireStalePayments(ctx)
	if err != nil {
		t.Fatalf("expiry sweep failed: %v", err)
	}
	if expired < 1 {
		t.Errorf("expected at least 1 expired payment, got %d", expired)
	}

	var failed model.Payment
	tc.db.First(&failed, payment.ID)
	if failed.Status != model.PaymentStatusFailed {
		t.Errorf("expected FAILED after sweep, got %s", failed.Status)
	}
	if failed.FailureReason == nil || *failed.FailureReason != "order expired" {
		t.Errorf("expected 'order expired' reason")
	}

	// An expired order can no longer be verified
	paymentID := "pay_" + uuid.New().String()[:12]
	sig := tc.gateway.SignPayload(payment.GatewayOrderID, paymentID)
	_, err = tc.payments.VerifyAndSettle(ctx, payment.GatewayOrderID, paymentID, sig)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("expected ErrAlreadyVerified for expired order, got %v", err)
	}
}
