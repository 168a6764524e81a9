package service

import (
	"context"
	"time"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// FreemiumService lazily provisions the host-configured free-tier
// enrollment for the calling user. Provisioning is idempotent under
// concurrent debits: the partial unique index on active freemium
// enrollments turns a lost race into a re-fetch.
type FreemiumService interface {
	// EnsureEnrollment returns the user's active freemium enrollment,
	// creating it on first use. Returns (nil, nil) when the free tier is
	// disabled or the requested variant does not match the configured one.
	EnsureEnrollment(ctx context.Context, variant *string, at time.Time) (*enrollment.Enrollment, error)
}

type freemiumService struct {
	ServiceParams
}

// NewFreemiumService creates a new freemium service
func NewFreemiumService(params ServiceParams) FreemiumService {
	return &freemiumService{ServiceParams: params}
}

func (s *freemiumService) EnsureEnrollment(ctx context.Context, variant *string, at time.Time) (*enrollment.Enrollment, error) {
	cfg := s.Config.Freemium
	if !cfg.Enabled {
		return nil, nil
	}

	configured := configuredVariant(cfg.Variant)
	if !variantMatches(variant, configured) {
		return nil, nil
	}

	userID := types.GetUserID(ctx)

	existing, err := s.EnrollmentRepo.FindActiveFreemiumForUpdate(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.ExpiredAt == nil || existing.ExpiredAt.After(at) {
			return existing, nil
		}
		// Window elapsed; retire it and provision a fresh one
		if err := s.EnrollmentRepo.MarkExpired(ctx, existing.UID); err != nil {
			return nil, err
		}
		publishWebhook(ctx, s.ServiceParams, types.WebhookEventEnrollmentExpired, userID, map[string]string{
			"enrollment_id": existing.UID,
		})
	}

	bundles, err := s.configuredBundles()
	if err != nil {
		return nil, err
	}

	e := enrollment.New(ctx)
	e.UserID = userID
	e.AcquisitionType = types.AcquisitionTypeFreemium
	e.StartedAt = at
	expiredAt := at.AddDate(0, 0, cfg.PeriodDays)
	e.ExpiredAt = &expiredAt
	e.Bundles = bundles
	e.Variant = configured

	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.EnrollmentRepo.Create(ctx, e); err != nil {
		if ierr.IsConflict(err) {
			// Another debit created it first; use theirs
			return s.EnrollmentRepo.FindActiveFreemiumForUpdate(ctx, userID, at)
		}
		return nil, err
	}

	s.Logger.Infow("provisioned freemium enrollment",
		"enrollment_id", e.UID,
		"user_id", userID,
		"expired_at", expiredAt,
	)

	publishWebhook(ctx, s.ServiceParams, types.WebhookEventEnrollmentCreated, userID, map[string]string{
		"enrollment_id": e.UID,
	})

	return e, nil
}

func (s *freemiumService) configuredBundles() (bundle.Bundles, error) {
	cfg := s.Config.Freemium
	bundles := make(bundle.Bundles, 0, len(cfg.Bundles))
	for _, b := range cfg.Bundles {
		quota, err := types.ParseDecimal(b.Quota)
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Invalid freemium quota for asset %s", b.Asset).
				Mark(ierr.ErrValidation)
		}
		bundles = append(bundles, bundle.Bundle{Asset: b.Asset, Quota: quota})
	}
	if err := bundles.Validate(); err != nil {
		return nil, err
	}
	return bundles, nil
}

func configuredVariant(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func variantMatches(requested, configured *string) bool {
	if requested == nil && configured == nil {
		return true
	}
	if requested == nil || configured == nil {
		return false
	}
	return *requested == *configured
}
