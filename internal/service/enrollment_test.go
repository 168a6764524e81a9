package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/testutil"
	"github.com/quotaflow/quotaflow/internal/types"
)

type EnrollmentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service      EnrollmentService
	usageService UsageService
	params       ServiceParams
	// debitCtx is an operator principal acting on behalf of user-1;
	// recording usage is operator-only
	debitCtx context.Context
	userCtx  context.Context
}

func TestEnrollmentService(t *testing.T) {
	suite.Run(t, new(EnrollmentServiceSuite))
}

func (s *EnrollmentServiceSuite) SetupTest() {
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
	s.service = NewEnrollmentService(s.params)
	s.usageService = NewUsageService(s.params, NewFreemiumService(s.params))
	s.debitCtx = types.SetUserID(s.GetContext(), "user-1")
	s.userCtx = testutil.SetupUserContext("user-1")
}

func (s *EnrollmentServiceSuite) createForUser(userID string) *dto.EnrollmentResponse {
	resp, err := s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		UserID:  userID,
		Bundles: bundlesOf("image", 10),
	})
	s.NoError(err)
	return resp
}

func (s *EnrollmentServiceSuite) TestCreateEnrollment() {
	resp, err := s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		UserID:  "user-1",
		Price:   lo.ToPtr(decimal.NewFromInt(42)),
		Bundles: bundlesOf("image", 10, "text", 5),
	})
	s.NoError(err)
	s.NotEmpty(resp.UID)
	s.Equal("user-1", resp.UserID)
	s.Equal(types.AcquisitionTypePurchase, resp.AcquisitionType)
	s.Equal(types.EnrollmentStatusActive, resp.Status)
	s.True(bundlesOf("image", 10, "text", 5).Equal(resp.LeftoverBundles),
		"a fresh enrollment's leftover is its full grant")

	stored, err := s.GetStores().EnrollmentRepo.Get(s.GetContext(), resp.UID)
	s.NoError(err)
	s.Equal(resp.UID, stored.UID)
}

func (s *EnrollmentServiceSuite) TestCreateEnrollmentEmitsWebhook() {
	resp := s.createForUser("user-1")

	messages := s.GetPubSub().GetMessages("webhooks")
	s.Len(messages, 1)

	var event types.WebhookEvent
	s.NoError(json.Unmarshal(messages[0].Payload, &event))
	s.Equal(types.WebhookEventEnrollmentCreated, event.EventName)
	s.Equal("user-1", event.UserID)

	var payload map[string]string
	s.NoError(json.Unmarshal(event.Payload, &payload))
	s.Equal(resp.UID, payload["enrollment_id"])
}

func (s *EnrollmentServiceSuite) TestCreateEnrollmentRequiresOperator() {
	_, err := s.service.CreateEnrollment(s.userCtx, dto.CreateEnrollmentRequest{
		UserID:  "user-1",
		Bundles: bundlesOf("image", 10),
	})
	s.Error(err)
	s.True(ierr.IsUnauthorized(err))
}

func (s *EnrollmentServiceSuite) TestCreateEnrollmentValidation() {
	_, err := s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		Bundles: bundlesOf("image", 10),
	})
	s.True(ierr.IsValidation(err), "user_id is required")

	_, err = s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		UserID: "user-1",
	})
	s.True(ierr.IsValidation(err), "bundles are required")

	_, err = s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		UserID:  "user-1",
		Price:   lo.ToPtr(decimal.NewFromInt(-1)),
		Bundles: bundlesOf("image", 10),
	})
	s.True(ierr.IsValidation(err), "price must not be negative")

	_, err = s.service.CreateEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		UserID:          "user-1",
		AcquisitionType: types.AcquisitionType("bogus"),
		Bundles:         bundlesOf("image", 10),
	})
	s.True(ierr.IsValidation(err), "unknown acquisition type")
}

func (s *EnrollmentServiceSuite) TestGetEnrollmentAugmentsLeftover() {
	created := s.createForUser("user-1")

	_, err := s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(4)),
	})
	s.NoError(err)

	got, err := s.service.GetEnrollment(s.userCtx, created.UID)
	s.NoError(err)
	s.True(bundlesOf("image", 6).Equal(got.LeftoverBundles))
	s.True(bundlesOf("image", 10).Equal(got.Bundles), "the original grant never changes")
}

func (s *EnrollmentServiceSuite) TestCachedLeftoverInvalidatedByDebit() {
	created := s.createForUser("user-1")

	// Prime the cache
	got, err := s.service.GetEnrollment(s.userCtx, created.UID)
	s.NoError(err)
	s.True(bundlesOf("image", 10).Equal(got.LeftoverBundles))

	_, err = s.usageService.CreateUsage(s.debitCtx, dto.CreateUsageRequest{
		Asset:  "image",
		Amount: lo.ToPtr(decimal.NewFromInt(3)),
	})
	s.NoError(err)

	got, err = s.service.GetEnrollment(s.userCtx, created.UID)
	s.NoError(err)
	s.True(bundlesOf("image", 7).Equal(got.LeftoverBundles))
}

func (s *EnrollmentServiceSuite) TestGetEnrollmentScopedToCaller() {
	created := s.createForUser("user-1")

	_, err := s.service.GetEnrollment(testutil.SetupUserContext("user-2"), created.UID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	got, err := s.service.GetEnrollment(s.GetContext(), created.UID)
	s.NoError(err)
	s.Equal(created.UID, got.UID)
}

func (s *EnrollmentServiceSuite) TestListEnrollmentsScoping() {
	s.createForUser("user-1")
	s.createForUser("user-1")
	s.createForUser("user-2")

	resp, err := s.service.ListEnrollments(s.userCtx, nil)
	s.NoError(err)
	s.Equal(2, resp.Total)
	for _, item := range resp.Items {
		s.Equal("user-1", item.UserID)
	}

	resp, err = s.service.ListEnrollments(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(3, resp.Total)

	filter := types.NewEnrollmentFilter()
	filter.UserID = lo.ToPtr("user-2")
	resp, err = s.service.ListEnrollments(s.GetContext(), filter)
	s.NoError(err)
	s.Equal(1, resp.Total)

	// The user_id filter is an operator facility; users stay self-scoped
	filter = types.NewEnrollmentFilter()
	filter.UserID = lo.ToPtr("user-2")
	resp, err = s.service.ListEnrollments(s.userCtx, filter)
	s.NoError(err)
	s.Equal(2, resp.Total)
}

func (s *EnrollmentServiceSuite) TestListEnrollmentsPagination() {
	for i := 0; i < 5; i++ {
		s.createForUser("user-1")
	}

	filter := types.NewEnrollmentFilter()
	filter.Limit = lo.ToPtr(2)
	filter.Offset = lo.ToPtr(4)
	resp, err := s.service.ListEnrollments(s.userCtx, filter)
	s.NoError(err)
	s.Equal(5, resp.Total)
	s.Len(resp.Items, 1)
	s.Equal(2, resp.Limit)
	s.Equal(4, resp.Offset)
}

func (s *EnrollmentServiceSuite) TestDeleteEnrollmentNotImplemented() {
	created := s.createForUser("user-1")

	err := s.service.DeleteEnrollment(s.GetContext(), created.UID)
	s.Error(err)
	s.True(ierr.IsNotImplemented(err))

	// The record is untouched
	_, err = s.service.GetEnrollment(s.GetContext(), created.UID)
	s.NoError(err)
}
