package usage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// Usage is one immutable ledger entry debiting an enrollment.
// LeftoverBundles is the enrollment's bundle state after this debit and
// is the authoritative post-state: the current leftover of an enrollment
// is the LeftoverBundles of its most recent usage row.
type Usage struct {
	UID             string          `db:"uid" json:"uid"`
	UserID          string          `db:"user_id" json:"user_id"`
	EnrollmentID    string          `db:"enrollment_id" json:"enrollment_id"`
	Asset           string          `db:"asset" json:"asset"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Variant         *string         `db:"variant" json:"variant,omitempty"`
	LeftoverBundles bundle.Bundles  `db:"leftover_bundles" json:"leftover_bundles"`
	MetaData        types.Metadata  `db:"meta_data" json:"meta_data,omitempty"`

	types.BaseModel
}

// New returns a usage row with defaults filled from the context
func New(ctx context.Context) *Usage {
	return &Usage{
		UID:       types.GenerateUUID(),
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
}

func (u *Usage) Validate() error {
	if u.EnrollmentID == "" {
		return ierr.NewError("enrollment_id is required").
			WithHint("A usage row must debit an enrollment").
			Mark(ierr.ErrValidation)
	}
	if u.Asset == "" {
		return ierr.NewError("asset is required").
			WithHint("A usage row must name an asset").
			Mark(ierr.ErrValidation)
	}
	if !u.Amount.IsPositive() {
		return ierr.NewError("amount must be positive").
			WithHint("Usage amount must be greater than zero").
			WithReportableDetails(map[string]any{"amount": u.Amount}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// LatestOf picks the row that defines the current leftover: most recent
// created_at, uid descending as the tiebreak.
func LatestOf(a, b *Usage) *Usage {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return a
	}
	if b.CreatedAt.After(a.CreatedAt) {
		return b
	}
	if a.UID > b.UID {
		return a
	}
	return b
}
