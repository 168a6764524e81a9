package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

var _ usage.Repository = (*InMemoryUsageStore)(nil)

// InMemoryUsageStore provides an in-memory implementation of the append-only
// usage ledger for testing. It needs the enrollment store to resolve the
// original grant and enforces the same leftover checks as the postgres
// repository, so concurrent-writer conflicts surface the same way.
type InMemoryUsageStore struct {
	mu          sync.RWMutex
	usages      map[string]*usage.Usage
	enrollments *InMemoryEnrollmentStore
}

// NewInMemoryUsageStore creates a new in-memory usage store backed by the
// given enrollment store
func NewInMemoryUsageStore(enrollments *InMemoryEnrollmentStore) *InMemoryUsageStore {
	return &InMemoryUsageStore{
		usages:      make(map[string]*usage.Usage),
		enrollments: enrollments,
	}
}

// Clear removes all usage rows from the store
func (s *InMemoryUsageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages = make(map[string]*usage.Usage)
}

func copyUsage(u *usage.Usage) *usage.Usage {
	next := *u
	next.LeftoverBundles = u.LeftoverBundles.Clone()
	return &next
}

func (s *InMemoryUsageStore) Append(ctx context.Context, u *usage.Usage) error {
	if err := u.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usages[u.UID]; exists {
		return ierr.NewError("usage already exists").
			WithHint("A usage row with this id already exists").
			Mark(ierr.ErrConflict)
	}

	original, err := s.enrollmentBundles(ctx, u.EnrollmentID)
	if err != nil {
		return err
	}

	current := original
	if latest := s.latestLocked(types.GetBusinessName(ctx), u.EnrollmentID); latest != nil {
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

	s.usages[u.UID] = copyUsage(u)
	return nil
}

func (s *InMemoryUsageStore) enrollmentBundles(ctx context.Context, enrollmentID string) (bundle.Bundles, error) {
	s.enrollments.mu.RLock()
	defer s.enrollments.mu.RUnlock()

	e, ok := s.enrollments.enrollments[enrollmentID]
	if !ok || e.IsDeleted || e.BusinessName != types.GetBusinessName(ctx) {
		return nil, ierr.NewError("enrollment not found").
			WithHintf("Enrollment %s was not found", enrollmentID).
			WithReportableDetails(map[string]any{"enrollment_id": enrollmentID}).
			Mark(ierr.ErrNotFound)
	}
	return e.Bundles.Clone(), nil
}

func (s *InMemoryUsageStore) Get(ctx context.Context, uid string) (*usage.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.usages[uid]
	if !ok || u.BusinessName != types.GetBusinessName(ctx) {
		return nil, s.notFound(uid)
	}
	if !types.IsOperator(ctx) && u.UserID != types.GetUserID(ctx) {
		return nil, s.notFound(uid)
	}
	return copyUsage(u), nil
}

func (s *InMemoryUsageStore) notFound(uid string) error {
	return ierr.NewError("usage not found").
		WithHintf("Usage %s was not found", uid).
		WithReportableDetails(map[string]any{"uid": uid}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryUsageStore) listMatches(ctx context.Context, filter *types.UsageFilter) []*usage.Usage {
	var items []*usage.Usage
	for _, u := range s.usages {
		if u.BusinessName != types.GetBusinessName(ctx) {
			continue
		}
		if !types.IsOperator(ctx) && u.UserID != types.GetUserID(ctx) {
			continue
		}
		if types.IsOperator(ctx) && filter.UserID != nil && u.UserID != *filter.UserID {
			continue
		}
		if filter.EnrollmentID != nil && u.EnrollmentID != *filter.EnrollmentID {
			continue
		}
		items = append(items, u)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].UID > items[j].UID
	})
	return items
}

func (s *InMemoryUsageStore) List(ctx context.Context, filter *types.UsageFilter) ([]*usage.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.listMatches(ctx, filter)

	offset := filter.GetOffset()
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + filter.GetLimit()
	if end > len(items) {
		end = len(items)
	}

	page := make([]*usage.Usage, 0, end-offset)
	for _, u := range items[offset:end] {
		page = append(page, copyUsage(u))
	}
	return page, nil
}

func (s *InMemoryUsageStore) Count(ctx context.Context, filter *types.UsageFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listMatches(ctx, filter)), nil
}

func (s *InMemoryUsageStore) Latest(ctx context.Context, enrollmentID string) (*usage.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if latest := s.latestLocked(types.GetBusinessName(ctx), enrollmentID); latest != nil {
		return copyUsage(latest), nil
	}
	return nil, nil
}

func (s *InMemoryUsageStore) latestLocked(businessName, enrollmentID string) *usage.Usage {
	var newest *usage.Usage
	for _, u := range s.usages {
		if u.BusinessName != businessName || u.EnrollmentID != enrollmentID {
			continue
		}
		newest = usage.LatestOf(newest, u)
	}
	return newest
}
