package enrollment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// Enrollment is a user's holding of one or more bundles from a business.
// Bundles is the original grant and is write-once after insert; the
// current leftover lives in the usage ledger, never on this record.
type Enrollment struct {
	UID             string                 `db:"uid" json:"uid"`
	UserID          string                 `db:"user_id" json:"user_id"`
	Price           decimal.Decimal        `db:"price" json:"price"`
	InvoiceID       *string                `db:"invoice_id" json:"invoice_id,omitempty"`
	AcquisitionType types.AcquisitionType  `db:"acquisition_type" json:"acquisition_type"`
	StartedAt       time.Time              `db:"started_at" json:"started_at"`
	ExpiredAt       *time.Time             `db:"expired_at" json:"expired_at,omitempty"`
	Status          types.EnrollmentStatus `db:"status" json:"status"`
	Bundles         bundle.Bundles         `db:"bundles" json:"bundles"`
	Variant         *string                `db:"variant" json:"variant,omitempty"`
	DueDate         *time.Time             `db:"due_date" json:"due_date,omitempty"`
	IsPaid          bool                   `db:"is_paid" json:"is_paid"`
	IsDeleted       bool                   `db:"is_deleted" json:"-"`
	MetaData        types.Metadata         `db:"meta_data" json:"meta_data,omitempty"`

	types.BaseModel
}

// New returns an enrollment with defaults filled from the context
func New(ctx context.Context) *Enrollment {
	return &Enrollment{
		UID:             types.GenerateUUID(),
		Price:           decimal.Zero,
		AcquisitionType: types.AcquisitionTypePurchase,
		StartedAt:       time.Now().UTC(),
		Status:          types.EnrollmentStatusActive,
		BaseModel:       types.GetDefaultBaseModel(ctx),
	}
}

func (e *Enrollment) Validate() error {
	if e.UserID == "" {
		return ierr.NewError("user_id is required").
			WithHint("Enrollment owner is required").
			Mark(ierr.ErrValidation)
	}
	if e.Price.IsNegative() {
		return ierr.NewError("price must not be negative").
			WithHint("Price must be zero or positive").
			Mark(ierr.ErrValidation)
	}
	if err := e.AcquisitionType.Validate(); err != nil {
		return err
	}
	if err := e.Status.Validate(); err != nil {
		return err
	}
	if err := e.Bundles.Validate(); err != nil {
		return err
	}
	if e.ExpiredAt != nil && e.ExpiredAt.Before(e.StartedAt) {
		return ierr.NewError("expired_at before started_at").
			WithHint("Expiry must not precede the start time").
			WithReportableDetails(map[string]any{
				"started_at": e.StartedAt,
				"expired_at": *e.ExpiredAt,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsActiveAt reports whether the enrollment can absorb a debit at the
// given instant, ignoring acquisition-type eligibility
func (e *Enrollment) IsActiveAt(at time.Time) bool {
	if e.IsDeleted || e.Status != types.EnrollmentStatusActive {
		return false
	}
	if !e.StartedAt.Before(at) {
		return false
	}
	if e.ExpiredAt != nil && !e.ExpiredAt.After(at) {
		return false
	}
	return true
}
