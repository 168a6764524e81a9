package types

import (
	"time"

	"github.com/samber/lo"

	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

const (
	// PageDefaultLimit is applied when a list request carries no limit
	PageDefaultLimit = 20
	// PageMaxLimit bounds the limit a caller may request
	PageMaxLimit = 100
)

// QueryFilter represents a generic query filter with optional fields
type QueryFilter struct {
	Limit  *int `json:"limit,omitempty" form:"limit"`
	Offset *int `json:"offset,omitempty" form:"offset"`
}

// DefaultQueryFilter defines default values for query filters
var DefaultQueryFilter = QueryFilter{
	Limit:  lo.ToPtr(PageDefaultLimit),
	Offset: lo.ToPtr(0),
}

// GetLimit returns the limit value or default if not set
func (f QueryFilter) GetLimit() int {
	if f.Limit == nil {
		return *DefaultQueryFilter.Limit
	}
	return *f.Limit
}

// GetOffset returns the offset value or default if not set
func (f QueryFilter) GetOffset() int {
	if f.Offset == nil {
		return *DefaultQueryFilter.Offset
	}
	return *f.Offset
}

func (f QueryFilter) Validate() error {
	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > PageMaxLimit) {
		return ierr.NewError("invalid limit").
			WithHintf("Limit must be between 1 and %d", PageMaxLimit).
			WithReportableDetails(map[string]any{"limit": *f.Limit}).
			Mark(ierr.ErrValidation)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return ierr.NewError("invalid offset").
			WithHint("Offset must be non-negative").
			WithReportableDetails(map[string]any{"offset": *f.Offset}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EnrollmentFilter is the closed set of parameters an enrollment list
// query accepts. The user_id filter is honored for operator principals
// only; user principals are always scoped to themselves.
type EnrollmentFilter struct {
	QueryFilter
	UserID *string `json:"user_id,omitempty" form:"user_id"`
}

// NewEnrollmentFilter creates an enrollment filter with default paging
func NewEnrollmentFilter() *EnrollmentFilter {
	return &EnrollmentFilter{}
}

// UsageFilter is the closed set of parameters a usage list query accepts
type UsageFilter struct {
	QueryFilter
	UserID       *string `json:"user_id,omitempty" form:"user_id"`
	EnrollmentID *string `json:"enrollment_id,omitempty" form:"enrollment_id"`
}

// NewUsageFilter creates a usage filter with default paging
func NewUsageFilter() *UsageFilter {
	return &UsageFilter{}
}

// ActiveEnrollmentQuery is the static predicate input for the active
// enrollment lookup. A nil Variant matches only enrollments with a nil
// variant; a non-nil Variant additionally matches enrollments tagged with
// the same value. A non-nil EnrollmentID pins the lookup to one enrollment.
type ActiveEnrollmentQuery struct {
	BusinessName string
	UserID       string
	Asset        string
	Variant      *string
	EnrollmentID *string
	Now          time.Time
}

func (q ActiveEnrollmentQuery) Validate() error {
	if q.BusinessName == "" || q.UserID == "" || q.Asset == "" {
		return ierr.NewError("incomplete enrollment query").
			WithHint("Business, user and asset are required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
