package service

import (
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/testutil"
	"github.com/quotaflow/quotaflow/internal/types"
)

type FreemiumServiceSuite struct {
	testutil.BaseServiceTestSuite
	service      FreemiumService
	usageService UsageService
	params       ServiceParams
	// debitCtx is an operator principal acting on behalf of user-1;
	// recording usage is operator-only
	debitCtx context.Context
	userCtx  context.Context
}

func TestFreemiumService(t *testing.T) {
	suite.Run(t, new(FreemiumServiceSuite))
}

func (s *FreemiumServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	stores := s.GetStores()
	s.params = ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		EnrollmentRepo:   stores.EnrollmentRepo,
		UsageRepo:        stores.UsageRepo,
		WebhookPublisher: s.GetWebhookPublisher(),
		Cache:            s.GetCache(),
	}
	s.service = NewFreemiumService(s.params)
	s.usageService = NewUsageService(s.params, s.service)
	s.debitCtx = types.SetUserID(s.GetContext(), "user-1")
	s.userCtx = testutil.SetupUserContext("user-1")
}

func (s *FreemiumServiceSuite) enableFreemium(variant string) {
	s.GetConfig().Freemium = config.FreemiumConfig{
		Enabled:    true,
		PeriodDays: 30,
		Variant:    variant,
		Bundles: []config.FreemiumBundle{
			{Asset: "image", Quota: "5"},
		},
	}
}

func (s *FreemiumServiceSuite) TestProvisionedOnFirstDebit() {
	s.enableFreemium("")

	rows, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(2)),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.True(bundlesOf("image", 3).Equal(rows[0].LeftoverBundles))

	fe, err := s.GetStores().EnrollmentRepo.FindActiveFreemium(s.userCtx, "user-1", time.Now().UTC())
	s.NoError(err)
	s.NotNil(fe)
	s.Equal(types.AcquisitionTypeFreemium, fe.AcquisitionType)
	s.Equal(rows[0].EnrollmentID, fe.UID)
	s.NotNil(fe.ExpiredAt)
}

func (s *FreemiumServiceSuite) TestSecondDebitReusesEnrollment() {
	s.enableFreemium("")

	first, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(2)),
	})
	s.NoError(err)

	second, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(1)),
	})
	s.NoError(err)
	s.Equal(first[0].EnrollmentID, second[0].EnrollmentID)
	s.True(bundlesOf("image", 2).Equal(second[0].LeftoverBundles))

	total, err := s.GetStores().EnrollmentRepo.Count(s.GetContext(), types.NewEnrollmentFilter())
	s.NoError(err)
	s.Equal(1, total)
}

func (s *FreemiumServiceSuite) TestDisabledMeansNoProvisioning() {
	_, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))

	total, err := s.GetStores().EnrollmentRepo.Count(s.GetContext(), types.NewEnrollmentFilter())
	s.NoError(err)
	s.Zero(total)
}

func (s *FreemiumServiceSuite) TestVariantMismatchSkipsProvisioning() {
	s.enableFreemium("")

	// Untagged tier does not serve tagged debits
	_, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:   "image",
		Variant: lo.ToPtr("gold"),
	})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))

	total, err := s.GetStores().EnrollmentRepo.Count(s.GetContext(), types.NewEnrollmentFilter())
	s.NoError(err)
	s.Zero(total)
}

func (s *FreemiumServiceSuite) TestConfiguredVariantServesOnlyMatchingDebits() {
	s.enableFreemium("gold")

	_, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))

	rows, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:   "image",
		Variant: lo.ToPtr("gold"),
	})
	s.NoError(err)
	s.Len(rows, 1)

	fe, err := s.GetStores().EnrollmentRepo.FindActiveFreemium(s.userCtx, "user-1", time.Now().UTC())
	s.NoError(err)
	s.NotNil(fe)
	s.Equal("gold", *fe.Variant)
}

func (s *FreemiumServiceSuite) TestWindowRollsOver() {
	s.enableFreemium("")
	t0 := time.Now().UTC().Add(-time.Hour)

	first, err := s.service.EnsureEnrollment(s.userCtx, nil, t0)
	s.NoError(err)
	s.NotNil(first)

	// Same window: the existing enrollment is reused
	again, err := s.service.EnsureEnrollment(s.userCtx, nil, t0.Add(time.Minute))
	s.NoError(err)
	s.Equal(first.UID, again.UID)

	// Past the window: retire and provision a fresh one
	later := t0.AddDate(0, 0, 31)
	next, err := s.service.EnsureEnrollment(s.userCtx, nil, later)
	s.NoError(err)
	s.NotNil(next)
	s.NotEqual(first.UID, next.UID)
	s.True(next.ExpiredAt.After(later))

	retired, err := s.GetStores().EnrollmentRepo.Get(s.GetContext(), first.UID)
	s.NoError(err)
	s.Equal(types.EnrollmentStatusExpired, retired.Status)
}

func (s *FreemiumServiceSuite) TestFreemiumConsumedBeforePaid() {
	s.enableFreemium("")

	paid := enrollment.New(s.GetContext())
	paid.UserID = "user-1"
	paid.Bundles = bundlesOf("image", 10)
	paid.StartedAt = time.Now().UTC().Add(-time.Hour)
	s.NoError(s.GetStores().EnrollmentRepo.Create(s.GetContext(), paid))

	rows, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(8)),
	})
	s.NoError(err)
	s.Len(rows, 2)

	s.True(decimal.NewFromInt(5).Equal(rows[0].Amount), "free tier drained first")
	s.Len(rows[0].LeftoverBundles, 0)
	s.Equal(paid.UID, rows[1].EnrollmentID)
	s.True(decimal.NewFromInt(3).Equal(rows[1].Amount))
	s.True(bundlesOf("image", 7).Equal(rows[1].LeftoverBundles))
}

func (s *FreemiumServiceSuite) TestPinnedDebitSkipsFreemium() {
	s.enableFreemium("")

	paid := enrollment.New(s.GetContext())
	paid.UserID = "user-1"
	paid.Bundles = bundlesOf("image", 10)
	paid.StartedAt = time.Now().UTC().Add(-time.Hour)
	s.NoError(s.GetStores().EnrollmentRepo.Create(s.GetContext(), paid))

	rows, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:        "image",
		Amount:       lo.ToPtr(decimal.NewFromInt(2)),
		EnrollmentID: lo.ToPtr(paid.UID),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.Equal(paid.UID, rows[0].EnrollmentID)

	fe, err := s.GetStores().EnrollmentRepo.FindActiveFreemium(s.userCtx, "user-1", time.Now().UTC())
	s.NoError(err)
	s.Nil(fe, "pinned debits never provision the free tier")
}

func (s *FreemiumServiceSuite) TestInvalidConfiguredQuotaRejected() {
	s.GetConfig().Freemium = config.FreemiumConfig{
		Enabled:    true,
		PeriodDays: 30,
		Bundles: []config.FreemiumBundle{
			{Asset: "image", Quota: "not-a-number"},
		},
	}

	_, err := s.service.EnsureEnrollment(s.userCtx, nil, time.Now().UTC())
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
