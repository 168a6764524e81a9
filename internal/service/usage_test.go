package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/testutil"
	"github.com/quotaflow/quotaflow/internal/types"
)

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service UsageService
	params  ServiceParams
	// debitCtx is an operator principal acting on behalf of user-1, the
	// only principal allowed to record usage
	debitCtx context.Context
	userCtx  context.Context
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
	s.debitCtx = types.SetUserID(s.GetContext(), "user-1")
	s.userCtx = testutil.SetupUserContext("user-1")
}

func (s *UsageServiceSuite) setupService() {
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
	s.service = NewUsageService(s.params, NewFreemiumService(s.params))
}

// createEnrollment inserts an enrollment for user-1 that started an hour
// ago, so it is always eligible at debit time unless mutated otherwise
func (s *UsageServiceSuite) createEnrollment(bundles bundle.Bundles, mutate ...func(*enrollment.Enrollment)) *enrollment.Enrollment {
	e := enrollment.New(s.GetContext())
	e.UserID = "user-1"
	e.Bundles = bundles
	e.StartedAt = time.Now().UTC().Add(-time.Hour)
	for _, m := range mutate {
		m(e)
	}
	s.NoError(s.GetStores().EnrollmentRepo.Create(s.GetContext(), e))
	return e
}

func bundlesOf(pairs ...interface{}) bundle.Bundles {
	b := bundle.Bundles{}
	for i := 0; i < len(pairs); i += 2 {
		b = append(b, bundle.Bundle{
			Asset: pairs[i].(string),
			Quota: decimal.NewFromInt(int64(pairs[i+1].(int))),
		})
	}
	return b
}

func (s *UsageServiceSuite) webhookEvents(name string) []*types.WebhookEvent {
	var events []*types.WebhookEvent
	for _, msg := range s.GetPubSub().GetMessages("webhooks") {
		var event types.WebhookEvent
		s.NoError(json.Unmarshal(msg.Payload, &event))
		if event.EventName == name {
			events = append(events, &event)
		}
	}
	return events
}

func (s *UsageServiceSuite) TestDebitSingleEnrollment() {
	e := s.createEnrollment(bundlesOf("image", 10))

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(3)),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.Equal(e.UID, rows[0].EnrollmentID)
	s.Equal("user-1", rows[0].UserID)
	s.True(decimal.NewFromInt(3).Equal(rows[0].Amount))
	s.True(bundlesOf("image", 7).Equal(rows[0].LeftoverBundles))

	latest, err := s.GetStores().UsageRepo.Latest(s.userCtx, e.UID)
	s.NoError(err)
	s.Equal(rows[0].UID, latest.UID)
}

func (s *UsageServiceSuite) TestDebitDrainsLedgerToEmpty() {
	e := s.createEnrollment(bundlesOf("image", 10))

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(3)),
	})
	s.NoError(err)

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(7)),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.True(bundle.Bundles{}.Equal(rows[0].LeftoverBundles))

	latest, err := s.GetStores().UsageRepo.Latest(s.userCtx, e.UID)
	s.NoError(err)
	s.Len(latest.LeftoverBundles, 0)
}

func (s *UsageServiceSuite) TestDebitDefaultsAmountToOne() {
	s.createEnrollment(bundlesOf("image", 10))

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
	s.NoError(err)
	s.Len(rows, 1)
	s.True(decimal.NewFromInt(1).Equal(rows[0].Amount))
	s.True(bundlesOf("image", 9).Equal(rows[0].LeftoverBundles))
}

func (s *UsageServiceSuite) TestSelectorPrefersSoonestExpiry() {
	now := time.Now().UTC()
	s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(10 * time.Minute))
	})
	s.createEnrollment(bundlesOf("image", 10))
	soonest := s.createEnrollment(bundlesOf("image", 10, "text", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(2 * time.Minute))
	})

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(5)),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.Equal(soonest.UID, rows[0].EnrollmentID)
	s.True(bundlesOf("image", 5, "text", 10).Equal(rows[0].LeftoverBundles))
}

func (s *UsageServiceSuite) TestSelectorSplitsResidualAcrossEnrollments() {
	now := time.Now().UTC()
	second := s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(10 * time.Minute))
	})
	s.createEnrollment(bundlesOf("image", 10))
	first := s.createEnrollment(bundlesOf("image", 10, "text", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(2 * time.Minute))
	})

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(15)),
	})
	s.NoError(err)
	s.Len(rows, 2)

	s.Equal(first.UID, rows[0].EnrollmentID)
	s.True(decimal.NewFromInt(10).Equal(rows[0].Amount))
	s.True(bundlesOf("text", 10).Equal(rows[0].LeftoverBundles), "drained image entry drops")

	s.Equal(second.UID, rows[1].EnrollmentID)
	s.True(decimal.NewFromInt(5).Equal(rows[1].Amount))
	s.True(bundlesOf("image", 5).Equal(rows[1].LeftoverBundles))

	// Ledger order within one plan is unambiguous
	s.True(rows[1].CreatedAt.After(rows[0].CreatedAt))
}

func (s *UsageServiceSuite) TestSelectorVariantTaggedFirst() {
	now := time.Now().UTC()
	tagged := s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.Variant = lo.ToPtr("v")
		e.ExpiredAt = lo.ToPtr(now.Add(11 * time.Minute))
	})
	untagged := s.createEnrollment(bundlesOf("image", 10, "text", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(2 * time.Minute))
	})

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:   "image",
		Amount:  lo.ToPtr(decimal.NewFromInt(15)),
		Variant: lo.ToPtr("v"),
	})
	s.NoError(err)
	s.Len(rows, 2)
	s.Equal(tagged.UID, rows[0].EnrollmentID)
	s.True(bundle.Bundles{}.Equal(rows[0].LeftoverBundles))
	s.Equal(untagged.UID, rows[1].EnrollmentID)
	s.True(decimal.NewFromInt(5).Equal(rows[1].Amount))
	s.Equal("v", *rows[0].Variant)
}

func (s *UsageServiceSuite) TestNilVariantMatchesOnlyUntagged() {
	s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.Variant = lo.ToPtr("gold")
	})

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(1)),
	})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:   "image",
		Amount:  lo.ToPtr(decimal.NewFromInt(1)),
		Variant: lo.ToPtr("gold"),
	})
	s.NoError(err)
	s.Len(rows, 1)
}

func (s *UsageServiceSuite) TestInsufficientQuotaWritesNothing() {
	s.createEnrollment(bundlesOf("image", 10))

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(100)),
	})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))

	total, err := s.GetStores().UsageRepo.Count(s.GetContext(), types.NewUsageFilter())
	s.NoError(err)
	s.Zero(total, "a failed commit must leave the ledger untouched")
	s.Empty(s.webhookEvents(types.WebhookEventUsageCommitted))
}

func (s *UsageServiceSuite) TestPinnedDebitUsesOnlyThatEnrollment() {
	s.createEnrollment(bundlesOf("image", 10))
	pinned := s.createEnrollment(bundlesOf("image", 4))

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:        "image",
		Amount:       lo.ToPtr(decimal.NewFromInt(3)),
		EnrollmentID: lo.ToPtr(pinned.UID),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.Equal(pinned.UID, rows[0].EnrollmentID)

	// The other enrollment may not absorb the residual of a pinned debit
	_, err = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:        "image",
		Amount:       lo.ToPtr(decimal.NewFromInt(5)),
		EnrollmentID: lo.ToPtr(pinned.UID),
	})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))
}

func (s *UsageServiceSuite) TestBorrowedEligibility() {
	now := time.Now().UTC()
	s.createEnrollment(bundlesOf("eligible", 10), func(e *enrollment.Enrollment) {
		e.AcquisitionType = types.AcquisitionTypeBorrowed
		e.DueDate = lo.ToPtr(now.Add(time.Hour))
	})
	s.createEnrollment(bundlesOf("paid", 10), func(e *enrollment.Enrollment) {
		e.AcquisitionType = types.AcquisitionTypeBorrowed
		e.DueDate = lo.ToPtr(now.Add(time.Hour))
		e.IsPaid = true
	})
	s.createEnrollment(bundlesOf("overdue", 10), func(e *enrollment.Enrollment) {
		e.AcquisitionType = types.AcquisitionTypeBorrowed
		e.DueDate = lo.ToPtr(now.Add(-time.Hour))
	})

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "eligible"})
	s.NoError(err)

	_, err = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "paid"})
	s.True(ierr.IsInsufficientQuota(err), "a settled loan no longer grants quota")

	_, err = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "overdue"})
	s.True(ierr.IsInsufficientQuota(err))
}

func (s *UsageServiceSuite) TestExpiredAndFutureEnrollmentsSkipped() {
	now := time.Now().UTC()
	s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.ExpiredAt = lo.ToPtr(now.Add(-time.Minute))
	})
	s.createEnrollment(bundlesOf("image", 10), func(e *enrollment.Enrollment) {
		e.StartedAt = now.Add(time.Hour)
	})

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
	s.Error(err)
	s.True(ierr.IsInsufficientQuota(err))
}

func (s *UsageServiceSuite) TestUserPrincipalCannotRecordUsage() {
	s.createEnrollment(bundlesOf("image", 10))

	_, err := s.service.CreateUsage(s.userCtx, dto.CreateUsageRequest{Asset: "image"})
	s.Error(err)
	s.True(ierr.IsUnauthorized(err))

	total, err := s.GetStores().UsageRepo.Count(s.GetContext(), types.NewUsageFilter())
	s.NoError(err)
	s.Zero(total, "a rejected debit must not touch the ledger")
}

func (s *UsageServiceSuite) TestOperatorDebitRequiresActingUser() {
	ctx := types.SetBusinessName(context.Background(), types.DefaultBusinessName)
	ctx = types.SetPrincipalType(ctx, types.PrincipalTypeOperator)

	_, err := s.service.CreateUsage(ctx, dto.CreateUsageRequest{Asset: "image"})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UsageServiceSuite) TestOperatorDebitsOnBehalfOfUser() {
	e := s.createEnrollment(bundlesOf("image", 10))

	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(2)),
	})
	s.NoError(err)
	s.Len(rows, 1)
	s.Equal(e.UID, rows[0].EnrollmentID)
	s.Equal("user-1", rows[0].UserID)
}

func (s *UsageServiceSuite) TestDepletionEmitsWebhook() {
	e := s.createEnrollment(bundlesOf("image", 5))

	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(5)),
	})
	s.NoError(err)

	committed := s.webhookEvents(types.WebhookEventUsageCommitted)
	s.Len(committed, 1)

	depleted := s.webhookEvents(types.WebhookEventEnrollmentDepleted)
	s.Len(depleted, 1)

	var payload map[string]string
	s.NoError(json.Unmarshal(depleted[0].Payload, &payload))
	s.Equal(e.UID, payload["enrollment_id"])
	s.Equal("image", payload["asset"])
}

func (s *UsageServiceSuite) TestConcurrentDebitsDoNotOverdraw() {
	e := s.createEnrollment(bundlesOf("image", 10))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
				Asset:  "image",
				Amount: lo.ToPtr(decimal.NewFromInt(7)),
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.True(ierr.IsInsufficientQuota(err))
		}
	}
	s.Equal(1, succeeded, "exactly one of two competing debits of 7 on 10 may land")

	latest, err := s.GetStores().UsageRepo.Latest(s.userCtx, e.UID)
	s.NoError(err)
	s.True(bundlesOf("image", 3).Equal(latest.LeftoverBundles))
}

func (s *UsageServiceSuite) TestGetUsageScopedToCaller() {
	s.createEnrollment(bundlesOf("image", 10))
	rows, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
	s.NoError(err)

	got, err := s.service.GetUsage(s.userCtx, rows[0].UID)
	s.NoError(err)
	s.Equal(rows[0].UID, got.UID)

	_, err = s.service.GetUsage(testutil.SetupUserContext("user-2"), rows[0].UID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	got, err = s.service.GetUsage(s.GetContext(), rows[0].UID)
	s.NoError(err)
	s.Equal(rows[0].UID, got.UID)
}

func (s *UsageServiceSuite) TestListUsages() {
	e1 := s.createEnrollment(bundlesOf("image", 10))
	e2 := s.createEnrollment(bundlesOf("text", 10))

	for i := 0; i < 3; i++ {
		_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "image"})
		s.NoError(err)
	}
	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{Asset: "text"})
	s.NoError(err)

	resp, err := s.service.ListUsages(s.userCtx, nil)
	s.NoError(err)
	s.Equal(4, resp.Total)
	s.Len(resp.Items, 4)

	filter := types.NewUsageFilter()
	filter.EnrollmentID = lo.ToPtr(e1.UID)
	resp, err = s.service.ListUsages(s.userCtx, filter)
	s.NoError(err)
	s.Equal(3, resp.Total)

	filter = types.NewUsageFilter()
	filter.EnrollmentID = lo.ToPtr(e2.UID)
	filter.Limit = lo.ToPtr(1)
	resp, err = s.service.ListUsages(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, resp.Total)
	s.Len(resp.Items, 1)
}

func (s *UsageServiceSuite) TestListUsagesRejectsBadPagination() {
	filter := types.NewUsageFilter()
	filter.Limit = lo.ToPtr(0)
	_, err := s.service.ListUsages(s.userCtx, filter)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	filter = types.NewUsageFilter()
	filter.Offset = lo.ToPtr(-1)
	_, err = s.service.ListUsages(s.userCtx, filter)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *UsageServiceSuite) TestCreateUsageValidation() {
	_, err := s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{})
	s.True(ierr.IsValidation(err), "asset is required")

	_, err = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.Zero),
	})
	s.True(ierr.IsValidation(err), "amount must be positive")

	_, err = s.service.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:        "image",
		EnrollmentID: lo.ToPtr(""),
	})
	s.True(ierr.IsValidation(err), "pinned enrollment id must not be empty")
}

func (s *UsageServiceSuite) TestLedgerAppendValidation() {
	e := s.createEnrollment(bundlesOf("image", 10))
	repo := s.GetStores().UsageRepo

	base := func() *usage.Usage {
		u := usage.New(s.userCtx)
		u.UserID = "user-1"
		u.EnrollmentID = e.UID
		u.Asset = "image"
		u.Amount = decimal.NewFromInt(2)
		u.LeftoverBundles = bundlesOf("image", 8)
		return u
	}

	missing := base()
	missing.EnrollmentID = "no-such-enrollment"
	s.True(ierr.IsNotFound(repo.Append(s.userCtx, missing)))

	zero := base()
	zero.Amount = decimal.Zero
	s.True(ierr.IsValidation(repo.Append(s.userCtx, zero)))

	// Leftover not equal to current minus amount means another writer
	// advanced the ledger
	divergent := base()
	divergent.LeftoverBundles = bundlesOf("image", 5)
	s.True(ierr.IsConflict(repo.Append(s.userCtx, divergent)))

	s.NoError(repo.Append(s.userCtx, base()))

	// The tail moved; replaying the same debit now conflicts
	s.True(ierr.IsConflict(repo.Append(s.userCtx, base())))
}

func (s *UsageServiceSuite) TestLedgerLatestFollowsAppendOrder() {
	e := s.createEnrollment(bundlesOf("image", 10))
	repo := s.GetStores().UsageRepo

	s.Nil(lo.Must(repo.Latest(s.userCtx, e.UID)))

	leftovers := []int{9, 8, 7}
	for i, left := range leftovers {
		u := usage.New(s.userCtx)
		u.UserID = "user-1"
		u.EnrollmentID = e.UID
		u.Asset = "image"
		u.Amount = decimal.NewFromInt(1)
		u.LeftoverBundles = bundlesOf("image", left)
		u.CreatedAt = u.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		s.NoError(repo.Append(s.userCtx, u))
	}

	latest, err := repo.Latest(s.userCtx, e.UID)
	s.NoError(err)
	s.True(bundlesOf("image", 7).Equal(latest.LeftoverBundles))
}

func (s *UsageServiceSuite) TestDeleteUsageNotImplemented() {
	err := s.service.DeleteUsage(s.GetContext(), "any")
	s.Error(err)
	s.True(ierr.IsNotImplemented(err))
}
