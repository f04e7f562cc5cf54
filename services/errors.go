package services

import "errors"

// Domain errors surfaced by the payment, enrollment, and points services.
// Handlers translate these into stable API error codes; anything not
// listed here is treated as an internal error.
var (
	// Order creation preconditions
	ErrCourseNotFound    = errors.New("course not found")
	ErrCourseUnavailable = errors.New("course is not available for purchase")
	ErrFreeCourse        = errors.New("course is free and does not require payment")
	ErrAlreadyEnrolled   = errors.New("user is already enrolled in this course")

	// Verification & settlement
	ErrPaymentNotFound    = errors.New("payment record not found")
	ErrAlreadyVerified    = errors.New("payment has already been verified")
	ErrInvalidSignature   = errors.New("payment signature verification failed")
	ErrSettlementConflict = errors.New("payment settlement conflicted with a concurrent enrollment")

	// Points
	ErrInvalidPoints = errors.New("points must be a positive integer")
	ErrUserNotFound  = errors.New("user not found")
)
