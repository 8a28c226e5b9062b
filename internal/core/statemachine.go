package core

// Legal payment transitions. Anything not listed is rejected.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusExpired},
	PaymentStatusSuccess: {PaymentStatusRefunded},
}

// Enrollment transitions driven by settlement. COMPLETED belongs to progress tracking.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending: {EnrollmentStatusActive},
	EnrollmentStatusActive:  {EnrollmentStatusDropped},
}

// CanTransitionTo reports whether a payment in status s may move to next
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether settlement may move an enrollment in status s to next
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
