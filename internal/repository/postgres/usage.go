package postgres

import (
	"context"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	"github.com/quotaflow/quotaflow/internal/types"
)

type usageRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewUsageRepository creates a new instance of usage repository
func NewUsageRepository(db *postgres.DB, logger *logger.Logger) usage.Repository {
	return &usageRepository{
		db:     db,
		logger: logger,
	}
}

const usageColumns = `
	uid, user_id, enrollment_id, asset, amount, variant, leftover_bundles,
	meta_data, business_name, created_at, updated_at, created_by, updated_by`

// Append writes one ledger row. Before inserting it re-derives the current
// leftover of the target enrollment and checks that the row's
// leftover_bundles equal current minus the debited amount. A mismatch means
// another writer advanced the ledger since the row was planned and surfaces
// as a conflict. Callers are expected to hold the enrollment row lock when
// appending from a debit transaction.
func (r *usageRepository) Append(ctx context.Context, u *usage.Usage) error {
	if err := u.Validate(); err != nil {
		return err
	}

	original, err := r.enrollmentBundles(ctx, u.EnrollmentID)
	if err != nil {
		return err
	}

	current := original
	latest, err := r.Latest(ctx, u.EnrollmentID)
	if err != nil {
		return err
	}
	if latest != nil {
		current = latest.LeftoverBundles
	}

	used, next := current.Deduct(u.Asset, u.Amount)
	if !used.Equal(u.Amount) || !next.Equal(u.LeftoverBundles) {
		return ierr.NewError("leftover diverges from ledger").
			WithHint("The enrollment was debited concurrently, please retry").
			WithReportableDetails(map[string]any{
				"enrollment_id": u.EnrollmentID,
				"asset":         u.Asset,
			}).
			Mark(ierr.ErrConflict)
	}
	if !bundle.ValidLeftover(original, u.LeftoverBundles) {
		return ierr.NewError("leftover exceeds the original grant").
			WithHint("Leftover bundles must be a subset of the enrollment's grant").
			WithReportableDetails(map[string]any{"enrollment_id": u.EnrollmentID}).
			Mark(ierr.ErrValidation)
	}

	query := `
		INSERT INTO usages (` + usageColumns + `) VALUES (
			:uid, :user_id, :enrollment_id, :asset, :amount, :variant, :leftover_bundles,
			:meta_data, :business_name, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("appending usage",
		"usage_id", u.UID,
		"enrollment_id", u.EnrollmentID,
		"asset", u.Asset,
		"amount", u.Amount,
	)

	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A usage row with this id already exists").
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to append usage").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, uid string) (*usage.Usage, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM usages
		WHERE uid = :uid
		AND business_name = :business_name`

	params := map[string]interface{}{
		"uid":           uid,
		"business_name": types.GetBusinessName(ctx),
	}
	query, params = scopeToUser(ctx, query, params)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query usage").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("usage not found").
			WithHintf("Usage %s was not found", uid).
			WithReportableDetails(map[string]any{"uid": uid}).
			Mark(ierr.ErrNotFound)
	}

	var u usage.Usage
	if err := rows.StructScan(&u); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan usage").
			Mark(ierr.ErrDatabase)
	}
	return &u, nil
}

func (r *usageRepository) List(ctx context.Context, filter *types.UsageFilter) ([]*usage.Usage, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM usages
		WHERE business_name = :business_name`

	params := map[string]interface{}{
		"business_name": types.GetBusinessName(ctx),
		"limit":         filter.GetLimit(),
		"offset":        filter.GetOffset(),
	}
	query, params = scopeToUser(ctx, query, params)
	query, params = applyUsageFilter(ctx, query, params, filter)

	query += `
		ORDER BY created_at DESC, uid DESC
		LIMIT :limit OFFSET :offset`

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query usages").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var items []*usage.Usage
	for rows.Next() {
		var u usage.Usage
		if err := rows.StructScan(&u); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan usage").
				Mark(ierr.ErrDatabase)
		}
		items = append(items, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate usages").
			Mark(ierr.ErrDatabase)
	}
	return items, nil
}

func (r *usageRepository) Count(ctx context.Context, filter *types.UsageFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM usages
		WHERE business_name = :business_name`

	params := map[string]interface{}{
		"business_name": types.GetBusinessName(ctx),
	}
	query, params = scopeToUser(ctx, query, params)
	query, params = applyUsageFilter(ctx, query, params, filter)

	var total int
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count usages").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to scan count").
				Mark(ierr.ErrDatabase)
		}
	}
	return total, nil
}

func (r *usageRepository) Latest(ctx context.Context, enrollmentID string) (*usage.Usage, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM usages
		WHERE enrollment_id = :enrollment_id
		AND business_name = :business_name
		ORDER BY created_at DESC, uid DESC
		LIMIT 1`

	params := map[string]interface{}{
		"enrollment_id": enrollmentID,
		"business_name": types.GetBusinessName(ctx),
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query latest usage").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var u usage.Usage
	if err := rows.StructScan(&u); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan usage").
			Mark(ierr.ErrDatabase)
	}
	return &u, nil
}

func (r *usageRepository) enrollmentBundles(ctx context.Context, enrollmentID string) (bundle.Bundles, error) {
	query := `
		SELECT bundles FROM enrollments
		WHERE uid = :uid
		AND business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"uid":           enrollmentID,
		"business_name": types.GetBusinessName(ctx),
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query enrollment").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("enrollment not found").
			WithHintf("Enrollment %s was not found", enrollmentID).
			WithReportableDetails(map[string]any{"enrollment_id": enrollmentID}).
			Mark(ierr.ErrNotFound)
	}

	var b bundle.Bundles
	if err := rows.Scan(&b); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan bundles").
			Mark(ierr.ErrDatabase)
	}
	return b, nil
}

func applyUsageFilter(ctx context.Context, query string, params map[string]interface{}, filter *types.UsageFilter) (string, map[string]interface{}) {
	if types.IsOperator(ctx) && filter.UserID != nil {
		query += ` AND user_id = :filter_user_id`
		params["filter_user_id"] = *filter.UserID
	}
	if filter.EnrollmentID != nil {
		query += ` AND enrollment_id = :filter_enrollment_id`
		params["filter_enrollment_id"] = *filter.EnrollmentID
	}
	return query, params
}
