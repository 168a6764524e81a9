package dto

import (
	"github.com/shopspring/decimal"

	"github.com/quotaflow/quotaflow/internal/domain/usage"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// CreateUsageRequest debits the caller's quota for an asset. Amount
// defaults to 1 when absent. EnrollmentID pins the debit to a single
// enrollment instead of letting the selector split it.
type CreateUsageRequest struct {
	Asset        string           `json:"asset" binding:"required"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Variant      *string          `json:"variant,omitempty"`
	EnrollmentID *string          `json:"enrollment_id,omitempty"`
	Metadata     types.Metadata   `json:"metadata,omitempty"`
}

func (r *CreateUsageRequest) Validate() error {
	if r.Asset == "" {
		return ierr.NewError("asset is required").
			WithHint("A usage must name the asset being consumed").
			Mark(ierr.ErrValidation)
	}
	if r.Amount != nil && !r.Amount.IsPositive() {
		return ierr.NewError("amount must be positive").
			WithHint("Usage amount must be greater than zero").
			WithReportableDetails(map[string]any{"amount": r.Amount}).
			Mark(ierr.ErrValidation)
	}
	if r.EnrollmentID != nil && *r.EnrollmentID == "" {
		return ierr.NewError("enrollment_id must not be empty").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// GetAmount returns the requested amount, defaulting to 1
func (r *CreateUsageRequest) GetAmount() decimal.Decimal {
	if r.Amount == nil {
		return decimal.NewFromInt(1)
	}
	return *r.Amount
}

// UsageResponse is one committed ledger row
type UsageResponse struct {
	*usage.Usage
}

// ListUsagesResponse represents a paginated list of usage rows
type ListUsagesResponse = types.PaginatedResponse[*UsageResponse]
