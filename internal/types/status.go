package types

import (
	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// EnrollmentStatus tracks the lifecycle of an enrollment. Enrollments are
// never hard-deleted; they either expire naturally or are soft-deleted.
type EnrollmentStatus string

const (
	EnrollmentStatusActive  EnrollmentStatus = "active"
	EnrollmentStatusExpired EnrollmentStatus = "expired"
)

func (s EnrollmentStatus) String() string {
	return string(s)
}

func (s EnrollmentStatus) Validate() error {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusExpired:
		return nil
	}
	return ierr.NewError("invalid enrollment status").
		WithHintf("Enrollment status must be one of %s or %s", EnrollmentStatusActive, EnrollmentStatusExpired).
		WithReportableDetails(map[string]any{"status": s}).
		Mark(ierr.ErrValidation)
}

// AcquisitionType describes how the user came to hold an enrollment
type AcquisitionType string

const (
	AcquisitionTypePurchase     AcquisitionType = "purchase"
	AcquisitionTypeBorrowed     AcquisitionType = "borrowed"
	AcquisitionTypeFreemium     AcquisitionType = "freemium"
	AcquisitionTypeTrial        AcquisitionType = "trial"
	AcquisitionTypeCredit       AcquisitionType = "credit"
	AcquisitionTypeGifted       AcquisitionType = "gifted"
	AcquisitionTypeDeferred     AcquisitionType = "deferred"
	AcquisitionTypePromo        AcquisitionType = "promo"
	AcquisitionTypeSubscription AcquisitionType = "subscription"
	AcquisitionTypeOnDemand     AcquisitionType = "on_demand"
)

func (t AcquisitionType) String() string {
	return string(t)
}

func (t AcquisitionType) Validate() error {
	switch t {
	case AcquisitionTypePurchase, AcquisitionTypeBorrowed, AcquisitionTypeFreemium,
		AcquisitionTypeTrial, AcquisitionTypeCredit, AcquisitionTypeGifted,
		AcquisitionTypeDeferred, AcquisitionTypePromo, AcquisitionTypeSubscription,
		AcquisitionTypeOnDemand:
		return nil
	}
	return ierr.NewError("invalid acquisition type").
		WithHint("Unknown acquisition type").
		WithReportableDetails(map[string]any{"acquisition_type": t}).
		Mark(ierr.ErrValidation)
}

// PrincipalType identifies the kind of caller resolved by the auth boundary.
// User principals are scoped to their own records and cannot create
// enrollments or commit usage.
type PrincipalType string

const (
	PrincipalTypeUser     PrincipalType = "user"
	PrincipalTypeOperator PrincipalType = "operator"
)
