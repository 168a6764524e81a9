package service

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// EnrollmentService manages enrollments. Creation is an operator concern;
// end users only read their own records. Deletion over the API is not
// supported in any form, enrollments end by expiry.
type EnrollmentService interface {
	CreateEnrollment(ctx context.Context, req dto.CreateEnrollmentRequest) (*dto.EnrollmentResponse, error)
	GetEnrollment(ctx context.Context, id string) (*dto.EnrollmentResponse, error)
	ListEnrollments(ctx context.Context, filter *types.EnrollmentFilter) (*dto.ListEnrollmentsResponse, error)
	DeleteEnrollment(ctx context.Context, id string) error
}

type enrollmentService struct {
	ServiceParams
}

// NewEnrollmentService creates a new enrollment service
func NewEnrollmentService(params ServiceParams) EnrollmentService {
	return &enrollmentService{ServiceParams: params}
}

func (s *enrollmentService) CreateEnrollment(ctx context.Context, req dto.CreateEnrollmentRequest) (*dto.EnrollmentResponse, error) {
	if !types.IsOperator(ctx) {
		return nil, ierr.NewError("operator principal required").
			WithHint("Only operators may create enrollments").
			Mark(ierr.ErrUnauthorized)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}

	e := req.ToEnrollment(ctx)
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.EnrollmentRepo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.Logger.Infow("created enrollment",
		"enrollment_id", e.UID,
		"user_id", e.UserID,
		"acquisition_type", e.AcquisitionType,
	)

	publishWebhook(ctx, s.ServiceParams, types.WebhookEventEnrollmentCreated, e.UserID, map[string]string{
		"enrollment_id": e.UID,
	})

	return &dto.EnrollmentResponse{
		Enrollment:      e,
		LeftoverBundles: e.Bundles.Clone(),
	}, nil
}

func (s *enrollmentService) GetEnrollment(ctx context.Context, id string) (*dto.EnrollmentResponse, error) {
	e, err := s.EnrollmentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	leftover, err := currentLeftover(ctx, s.ServiceParams, e, true)
	if err != nil {
		return nil, err
	}

	return &dto.EnrollmentResponse{
		Enrollment:      e,
		LeftoverBundles: leftover,
	}, nil
}

func (s *enrollmentService) ListEnrollments(ctx context.Context, filter *types.EnrollmentFilter) (*dto.ListEnrollmentsResponse, error) {
	if filter == nil {
		filter = types.NewEnrollmentFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.EnrollmentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.EnrollmentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Leftover derivation needs one ledger read per enrollment; fan out
	responses := make([]*dto.EnrollmentResponse, len(items))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(5).WithCancelOnError()
	for i, e := range items {
		i, e := i, e
		p.Go(func(ctx context.Context) error {
			leftover, err := currentLeftover(ctx, s.ServiceParams, e, true)
			if err != nil {
				return err
			}
			responses[i] = &dto.EnrollmentResponse{
				Enrollment:      e,
				LeftoverBundles: leftover,
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	resp := types.NewPaginatedResponse(responses, total, filter.GetOffset(), filter.GetLimit())
	return &resp, nil
}

// DeleteEnrollment always rejects: quota history must stay reconstructable,
// enrollments end by natural expiry only
func (s *enrollmentService) DeleteEnrollment(ctx context.Context, id string) error {
	return ierr.NewError("enrollment deletion is not supported").
		WithHint("Enrollments cannot be deleted, they expire naturally").
		Mark(ierr.ErrNotImplemented)
}
