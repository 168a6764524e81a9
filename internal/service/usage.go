package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// commitAttempts bounds retries when concurrent debits conflict
const commitAttempts = 3

// UsageService records quota consumption. Recording usage is an operator
// action taken on behalf of a user; end users only read their own rows.
// CreateUsage runs the selector and appends the resulting debit plan
// atomically: either every split lands or none does.
type UsageService interface {
	CreateUsage(ctx context.Context, req dto.CreateUsageRequest) ([]*dto.UsageResponse, error)
	GetUsage(ctx context.Context, id string) (*dto.UsageResponse, error)
	ListUsages(ctx context.Context, filter *types.UsageFilter) (*dto.ListUsagesResponse, error)
	DeleteUsage(ctx context.Context, id string) error
}

type usageService struct {
	ServiceParams
	freemium FreemiumService
}

// NewUsageService creates a new usage service
func NewUsageService(params ServiceParams, freemium FreemiumService) UsageService {
	return &usageService{
		ServiceParams: params,
		freemium:      freemium,
	}
}

// debitStep is one planned split of a debit across enrollments
type debitStep struct {
	enrollment *enrollment.Enrollment
	amount     decimal.Decimal
	leftover   bundle.Bundles
	// depleted marks that this step drains the last unit of the asset
	// from the enrollment
	depleted bool
}

func (s *usageService) CreateUsage(ctx context.Context, req dto.CreateUsageRequest) ([]*dto.UsageResponse, error) {
	if !types.IsOperator(ctx) {
		return nil, ierr.NewError("operator principal required").
			WithHint("Only operators may record usage").
			Mark(ierr.ErrUnauthorized)
	}
	if types.GetUserID(ctx) == "" {
		return nil, ierr.NewError("acting user required").
			WithHint("Operator debits must name the user via the X-User-ID header").
			Mark(ierr.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var created []*usage.Usage

	operation := func() error {
		rows, err := s.commitOnce(ctx, &req)
		if err != nil {
			if ierr.IsConflict(err) {
				s.Logger.Warnw("usage commit conflicted, retrying",
					"asset", req.Asset,
					"user_id", types.GetUserID(ctx),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		created = rows
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), commitAttempts-1)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	responses := make([]*dto.UsageResponse, 0, len(created))
	for _, u := range created {
		invalidateLeftover(ctx, s.ServiceParams, u.EnrollmentID)
		publishWebhook(ctx, s.ServiceParams, types.WebhookEventUsageCommitted, u.UserID, map[string]string{
			"usage_id":      u.UID,
			"enrollment_id": u.EnrollmentID,
		})
		if !u.LeftoverBundles.Contains(u.Asset) {
			publishWebhook(ctx, s.ServiceParams, types.WebhookEventEnrollmentDepleted, u.UserID, map[string]string{
				"enrollment_id": u.EnrollmentID,
				"asset":         u.Asset,
			})
		}
		responses = append(responses, &dto.UsageResponse{Usage: u})
	}
	return responses, nil
}

// commitOnce plans and appends one debit inside a single transaction. Row
// locks taken by the ForUpdate lookups serialize competing debits of the
// same enrollments.
func (s *usageService) commitOnce(ctx context.Context, req *dto.CreateUsageRequest) ([]*usage.Usage, error) {
	now := time.Now().UTC()
	requested := req.GetAmount()

	var created []*usage.Usage
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		steps, granted, err := s.selectEnrollments(ctx, req, now)
		if err != nil {
			return err
		}

		if granted.LessThan(requested) {
			shortfall := requested.Sub(granted)
			return ierr.NewError("insufficient quota").
				WithHintf("Requested %s of %s but only %s is available", requested, req.Asset, granted).
				WithReportableDetails(map[string]any{
					"asset":     req.Asset,
					"requested": requested,
					"granted":   granted,
					"shortfall": shortfall,
				}).
				Mark(ierr.ErrInsufficientQuota)
		}

		created = make([]*usage.Usage, 0, len(steps))
		for i, step := range steps {
			u := usage.New(ctx)
			u.UserID = types.GetUserID(ctx)
			u.EnrollmentID = step.enrollment.UID
			u.Asset = req.Asset
			u.Amount = step.amount
			u.Variant = req.Variant
			u.LeftoverBundles = step.leftover
			u.MetaData = req.Metadata
			// Strictly increasing timestamps keep the ledger order of one
			// plan unambiguous
			u.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
			u.UpdatedAt = u.CreatedAt

			if err := s.UsageRepo.Append(ctx, u); err != nil {
				return err
			}
			created = append(created, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// selectEnrollments builds the debit plan: the freemium enrollment first
// unless the debit is pinned, then eligible enrollments in deterministic
// order (tagged before untagged, expiring before non-expiring, sooner
// expiry first, uid as final tiebreak). Each step consumes as much of the
// residual as the enrollment's current leftover covers. A plan that does
// not cover the full amount is returned as-is; judging it is the caller's
// concern.
func (s *usageService) selectEnrollments(ctx context.Context, req *dto.CreateUsageRequest, now time.Time) ([]debitStep, decimal.Decimal, error) {
	residual := req.GetAmount()
	granted := decimal.Zero
	var steps []debitStep

	appendStep := func(e *enrollment.Enrollment) error {
		leftover, err := currentLeftover(ctx, s.ServiceParams, e, false)
		if err != nil {
			return err
		}
		used, next := leftover.Deduct(req.Asset, residual)
		if !used.IsPositive() {
			return nil
		}
		steps = append(steps, debitStep{
			enrollment: e,
			amount:     used,
			leftover:   next,
			depleted:   !next.Contains(req.Asset),
		})
		granted = granted.Add(used)
		residual = residual.Sub(used)
		return nil
	}

	if req.EnrollmentID == nil {
		fe, err := s.freemium.EnsureEnrollment(ctx, req.Variant, now)
		if err != nil {
			return nil, granted, err
		}
		if fe != nil {
			if err := appendStep(fe); err != nil {
				return nil, granted, err
			}
		}
	}

	if residual.IsPositive() {
		q := types.ActiveEnrollmentQuery{
			BusinessName: types.GetBusinessName(ctx),
			UserID:       types.GetUserID(ctx),
			Asset:        req.Asset,
			Variant:      req.Variant,
			EnrollmentID: req.EnrollmentID,
			Now:          now,
		}
		candidates, err := s.EnrollmentRepo.FindActiveForUpdate(ctx, q)
		if err != nil {
			return nil, granted, err
		}

		for _, e := range candidates {
			if err := appendStep(e); err != nil {
				return nil, granted, err
			}
			if !residual.IsPositive() {
				break
			}
		}
	}

	return steps, granted, nil
}

func (s *usageService) GetUsage(ctx context.Context, id string) (*dto.UsageResponse, error) {
	u, err := s.UsageRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.UsageResponse{Usage: u}, nil
}

func (s *usageService) ListUsages(ctx context.Context, filter *types.UsageFilter) (*dto.ListUsagesResponse, error) {
	if filter == nil {
		filter = types.NewUsageFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.UsageRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.UsageRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.UsageResponse, 0, len(items))
	for _, u := range items {
		responses = append(responses, &dto.UsageResponse{Usage: u})
	}

	resp := types.NewPaginatedResponse(responses, total, filter.GetOffset(), filter.GetLimit())
	return &resp, nil
}

// DeleteUsage always rejects: the ledger is append-only
func (s *usageService) DeleteUsage(ctx context.Context, id string) error {
	return ierr.NewError("usage deletion is not supported").
		WithHint("Usage rows are immutable ledger entries").
		Mark(ierr.ErrNotImplemented)
}
