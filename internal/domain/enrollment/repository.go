package enrollment

import (
	"context"
	"time"

	"github.com/quotaflow/quotaflow/internal/types"
)

// Repository persists enrollments. All reads are scoped by the business
// in the context; user principals are additionally scoped to their own
// user_id. FindActive returns matches in debit priority order:
// variant-tagged first, finite expiry before never-expires, soonest
// expiry first, uid ascending as the final tiebreak.
type Repository interface {
	Create(ctx context.Context, e *Enrollment) error
	Get(ctx context.Context, uid string) (*Enrollment, error)
	List(ctx context.Context, filter *types.EnrollmentFilter) ([]*Enrollment, error)
	Count(ctx context.Context, filter *types.EnrollmentFilter) (int, error)
	SoftDelete(ctx context.Context, uid string) error
	MarkExpired(ctx context.Context, uid string) error

	FindActive(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*Enrollment, error)
	// FindActiveForUpdate runs the same query holding row locks for the
	// duration of the surrounding transaction. Callers must be inside one.
	FindActiveForUpdate(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*Enrollment, error)

	FindActiveFreemium(ctx context.Context, userID string, at time.Time) (*Enrollment, error)
	FindActiveFreemiumForUpdate(ctx context.Context, userID string, at time.Time) (*Enrollment, error)
}
