package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// CreateEnrollmentRequest grants a user a set of asset bundles
type CreateEnrollmentRequest struct {
	UserID          string                `json:"user_id" binding:"required"`
	Price           *decimal.Decimal      `json:"price,omitempty"`
	InvoiceID       *string               `json:"invoice_id,omitempty"`
	AcquisitionType types.AcquisitionType `json:"acquisition_type,omitempty"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	ExpiredAt       *time.Time            `json:"expired_at,omitempty"`
	Bundles         bundle.Bundles        `json:"bundles" binding:"required"`
	Variant         *string               `json:"variant,omitempty"`
	DueDate         *time.Time            `json:"due_date,omitempty"`
	IsPaid          *bool                 `json:"is_paid,omitempty"`
	Metadata        types.Metadata        `json:"metadata,omitempty"`
}

func (r *CreateEnrollmentRequest) Validate() error {
	if r.UserID == "" {
		return ierr.NewError("user_id is required").
			WithHint("An enrollment must belong to a user").
			Mark(ierr.ErrValidation)
	}
	if err := r.Bundles.Validate(); err != nil {
		return err
	}
	if r.Price != nil && r.Price.IsNegative() {
		return ierr.NewError("price must not be negative").
			WithReportableDetails(map[string]any{"price": r.Price}).
			Mark(ierr.ErrValidation)
	}
	if r.AcquisitionType != "" {
		if err := r.AcquisitionType.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToEnrollment builds the domain model, filling defaults for absent fields
func (r *CreateEnrollmentRequest) ToEnrollment(ctx context.Context) *enrollment.Enrollment {
	e := enrollment.New(ctx)
	e.UserID = r.UserID
	e.Bundles = r.Bundles.Clone()
	e.InvoiceID = r.InvoiceID
	e.Variant = r.Variant
	e.DueDate = r.DueDate
	e.MetaData = r.Metadata

	if r.Price != nil {
		e.Price = *r.Price
	}
	if r.AcquisitionType != "" {
		e.AcquisitionType = r.AcquisitionType
	}
	if r.StartedAt != nil {
		e.StartedAt = *r.StartedAt
	}
	e.ExpiredAt = r.ExpiredAt
	if r.IsPaid != nil {
		e.IsPaid = *r.IsPaid
	}
	return e
}

// EnrollmentResponse is an enrollment augmented with its current leftover,
// derived from the newest usage row
type EnrollmentResponse struct {
	*enrollment.Enrollment
	LeftoverBundles bundle.Bundles `json:"leftover_bundles"`
}

// ListEnrollmentsResponse represents a paginated list of enrollments
type ListEnrollmentsResponse = types.PaginatedResponse[*EnrollmentResponse]
