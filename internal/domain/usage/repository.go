package usage

import (
	"context"

	"github.com/quotaflow/quotaflow/internal/types"
)

// Repository is the append-only usage ledger. Rows are never updated or
// deleted; there are deliberately no methods for either. Append rejects
// rows that reference a missing enrollment, carry a non-positive amount,
// or whose leftover_bundles diverge from the ledger tail — the latter
// surfaces as a conflict so committers can retry.
type Repository interface {
	Append(ctx context.Context, u *Usage) error
	Get(ctx context.Context, uid string) (*Usage, error)
	List(ctx context.Context, filter *types.UsageFilter) ([]*Usage, error)
	Count(ctx context.Context, filter *types.UsageFilter) (int, error)
	// Latest returns the most recent row for the enrollment by created_at
	// desc, uid desc, or (nil, nil) when the ledger holds none.
	Latest(ctx context.Context, enrollmentID string) (*Usage, error)
}
