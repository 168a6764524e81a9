package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	"github.com/quotaflow/quotaflow/internal/types"
)

type enrollmentRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewEnrollmentRepository creates a new instance of enrollment repository
func NewEnrollmentRepository(db *postgres.DB, logger *logger.Logger) enrollment.Repository {
	return &enrollmentRepository{
		db:     db,
		logger: logger,
	}
}

const enrollmentColumns = `
	uid, user_id, price, invoice_id, acquisition_type, started_at, expired_at,
	status, bundles, variant, due_date, is_paid, is_deleted, meta_data,
	business_name, created_at, updated_at, created_by, updated_by`

// findActiveQuery is the static predicate for eligible enrollments. The
// variant clause relies on NULL comparison semantics: a NULL request
// variant matches only untagged enrollments, a non-NULL one additionally
// matches enrollments tagged with the same value.
const findActiveQuery = `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE business_name = :business_name
	AND user_id = :user_id
	AND is_deleted = false
	AND status = :active
	AND started_at < :now
	AND bundles @> CAST(:asset_probe AS jsonb)
	AND (
		acquisition_type = :purchase
		OR (acquisition_type = :borrowed AND due_date > :now AND is_paid = false)
	)
	AND (expired_at > :now OR expired_at IS NULL)
	AND (variant IS NULL OR variant = :variant)`

const findActiveOrder = `
	ORDER BY (variant IS NULL) ASC,
		(expired_at IS NULL) ASC,
		expired_at ASC NULLS LAST,
		uid ASC`

func (r *enrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `) VALUES (
			:uid, :user_id, :price, :invoice_id, :acquisition_type, :started_at, :expired_at,
			:status, :bundles, :variant, :due_date, :is_paid, :is_deleted, :meta_data,
			:business_name, :created_at, :updated_at, :created_by, :updated_by
		)`

	r.logger.Debugw("creating enrollment",
		"enrollment_id", e.UID,
		"business_name", e.BusinessName,
		"user_id", e.UserID,
	)

	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An equivalent enrollment already exists").
				Mark(ierr.ErrConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to create enrollment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *enrollmentRepository) Get(ctx context.Context, uid string) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE uid = :uid
		AND business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"uid":           uid,
		"business_name": types.GetBusinessName(ctx),
	}
	query, params = scopeToUser(ctx, query, params)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query enrollment").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("enrollment not found").
			WithHintf("Enrollment %s was not found", uid).
			WithReportableDetails(map[string]any{"uid": uid}).
			Mark(ierr.ErrNotFound)
	}

	var e enrollment.Enrollment
	if err := rows.StructScan(&e); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan enrollment").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

func (r *enrollmentRepository) List(ctx context.Context, filter *types.EnrollmentFilter) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"business_name": types.GetBusinessName(ctx),
		"limit":         filter.GetLimit(),
		"offset":        filter.GetOffset(),
	}
	query, params = scopeToUser(ctx, query, params)

	if types.IsOperator(ctx) && filter.UserID != nil {
		query += ` AND user_id = :filter_user_id`
		params["filter_user_id"] = *filter.UserID
	}

	query += `
		ORDER BY created_at DESC, uid DESC
		LIMIT :limit OFFSET :offset`

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query enrollments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var items []*enrollment.Enrollment
	for rows.Next() {
		var e enrollment.Enrollment
		if err := rows.StructScan(&e); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan enrollment").
				Mark(ierr.ErrDatabase)
		}
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate enrollments").
			Mark(ierr.ErrDatabase)
	}
	return items, nil
}

func (r *enrollmentRepository) Count(ctx context.Context, filter *types.EnrollmentFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM enrollments
		WHERE business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"business_name": types.GetBusinessName(ctx),
	}
	query, params = scopeToUser(ctx, query, params)

	if types.IsOperator(ctx) && filter.UserID != nil {
		query += ` AND user_id = :filter_user_id`
		params["filter_user_id"] = *filter.UserID
	}

	var total int
	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count enrollments").
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

func (r *enrollmentRepository) SoftDelete(ctx context.Context, uid string) error {
	query := `
		UPDATE enrollments
		SET is_deleted = true,
			updated_at = NOW(),
			updated_by = :updated_by
		WHERE uid = :uid
		AND business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"uid":           uid,
		"business_name": types.GetBusinessName(ctx),
		"updated_by":    types.GetUserID(ctx),
	}

	result, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete enrollment").
			Mark(ierr.ErrDatabase)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete enrollment").
			Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("enrollment not found").
			WithHintf("Enrollment %s was not found", uid).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *enrollmentRepository) MarkExpired(ctx context.Context, uid string) error {
	query := `
		UPDATE enrollments
		SET status = :expired,
			updated_at = NOW(),
			updated_by = :updated_by
		WHERE uid = :uid
		AND business_name = :business_name
		AND is_deleted = false`

	params := map[string]interface{}{
		"uid":           uid,
		"expired":       types.EnrollmentStatusExpired,
		"business_name": types.GetBusinessName(ctx),
		"updated_by":    types.GetUserID(ctx),
	}

	if _, err := r.db.NamedExecContext(ctx, query, params); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to expire enrollment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *enrollmentRepository) FindActive(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*enrollment.Enrollment, error) {
	return r.findActive(ctx, q, false)
}

func (r *enrollmentRepository) FindActiveForUpdate(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*enrollment.Enrollment, error) {
	return r.findActive(ctx, q, true)
}

func (r *enrollmentRepository) findActive(ctx context.Context, q types.ActiveEnrollmentQuery, forUpdate bool) ([]*enrollment.Enrollment, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	assetProbe, err := json.Marshal([]map[string]string{{"asset": q.Asset}})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to build asset probe").
			Mark(ierr.ErrInternal)
	}

	query := findActiveQuery
	params := map[string]interface{}{
		"business_name": q.BusinessName,
		"user_id":       q.UserID,
		"active":        types.EnrollmentStatusActive,
		"purchase":      types.AcquisitionTypePurchase,
		"borrowed":      types.AcquisitionTypeBorrowed,
		"now":           q.Now,
		"asset_probe":   string(assetProbe),
		"variant":       q.Variant,
	}

	if q.EnrollmentID != nil {
		query += ` AND uid = :enrollment_id`
		params["enrollment_id"] = *q.EnrollmentID
	}

	query += findActiveOrder
	if forUpdate {
		query += `
	FOR UPDATE`
	}

	r.logger.Debugw("finding active enrollments",
		"business_name", q.BusinessName,
		"user_id", q.UserID,
		"asset", q.Asset,
		"variant", q.Variant,
		"for_update", forUpdate,
	)

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		if postgres.IsSerializationFailure(err) {
			return nil, ierr.WithError(err).
				WithHint("Concurrent update detected, please retry").
				Mark(ierr.ErrConflict)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to query active enrollments").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	var items []*enrollment.Enrollment
	for rows.Next() {
		var e enrollment.Enrollment
		if err := rows.StructScan(&e); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to scan enrollment").
				Mark(ierr.ErrDatabase)
		}
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to iterate enrollments").
			Mark(ierr.ErrDatabase)
	}
	return items, nil
}

func (r *enrollmentRepository) FindActiveFreemium(ctx context.Context, userID string, at time.Time) (*enrollment.Enrollment, error) {
	return r.findActiveFreemium(ctx, userID, at, false)
}

func (r *enrollmentRepository) FindActiveFreemiumForUpdate(ctx context.Context, userID string, at time.Time) (*enrollment.Enrollment, error) {
	return r.findActiveFreemium(ctx, userID, at, true)
}

func (r *enrollmentRepository) findActiveFreemium(ctx context.Context, userID string, at time.Time, forUpdate bool) (*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE business_name = :business_name
		AND user_id = :user_id
		AND acquisition_type = :freemium
		AND status = :active
		AND is_deleted = false
		AND started_at <= :now
		ORDER BY created_at DESC, uid DESC
		LIMIT 1`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	params := map[string]interface{}{
		"business_name": types.GetBusinessName(ctx),
		"user_id":       userID,
		"freemium":      types.AcquisitionTypeFreemium,
		"active":        types.EnrollmentStatusActive,
		"now":           at,
	}

	rows, err := r.db.NamedQueryContext(ctx, query, params)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to query freemium enrollment").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var e enrollment.Enrollment
	if err := rows.StructScan(&e); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to scan enrollment").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

// scopeToUser narrows a query to the caller's own records when the
// principal is an end user
func scopeToUser(ctx context.Context, query string, params map[string]interface{}) (string, map[string]interface{}) {
	if !types.IsOperator(ctx) {
		query += ` AND user_id = :scope_user_id`
		params["scope_user_id"] = types.GetUserID(ctx)
	}
	return query, params
}
