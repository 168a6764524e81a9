package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

var _ enrollment.Repository = (*InMemoryEnrollmentStore)(nil)

// InMemoryEnrollmentStore provides an in-memory implementation of the
// enrollment repository for testing. It mirrors the postgres predicates,
// scoping and ordering, including the active-freemium uniqueness rule.
type InMemoryEnrollmentStore struct {
	mu          sync.RWMutex
	enrollments map[string]*enrollment.Enrollment
}

// NewInMemoryEnrollmentStore creates a new in-memory enrollment store
func NewInMemoryEnrollmentStore() *InMemoryEnrollmentStore {
	return &InMemoryEnrollmentStore{
		enrollments: make(map[string]*enrollment.Enrollment),
	}
}

// Clear removes all enrollments from the store
func (s *InMemoryEnrollmentStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = make(map[string]*enrollment.Enrollment)
}

func copyEnrollment(e *enrollment.Enrollment) *enrollment.Enrollment {
	next := *e
	next.Bundles = e.Bundles.Clone()
	return &next
}

func variantKey(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func (s *InMemoryEnrollmentStore) Create(ctx context.Context, e *enrollment.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.enrollments[e.UID]; exists {
		return ierr.NewError("enrollment already exists").
			WithHint("An equivalent enrollment already exists").
			Mark(ierr.ErrConflict)
	}

	if e.AcquisitionType == types.AcquisitionTypeFreemium && e.Status == types.EnrollmentStatusActive {
		for _, existing := range s.enrollments {
			if existing.IsDeleted ||
				existing.AcquisitionType != types.AcquisitionTypeFreemium ||
				existing.Status != types.EnrollmentStatusActive {
				continue
			}
			if existing.BusinessName == e.BusinessName &&
				existing.UserID == e.UserID &&
				variantKey(existing.Variant) == variantKey(e.Variant) {
				return ierr.NewError("active freemium enrollment already exists").
					WithHint("An equivalent enrollment already exists").
					Mark(ierr.ErrConflict)
			}
		}
	}

	s.enrollments[e.UID] = copyEnrollment(e)
	return nil
}

func (s *InMemoryEnrollmentStore) Get(ctx context.Context, uid string) (*enrollment.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.enrollments[uid]
	if !ok || e.IsDeleted || e.BusinessName != types.GetBusinessName(ctx) {
		return nil, s.notFound(uid)
	}
	if !types.IsOperator(ctx) && e.UserID != types.GetUserID(ctx) {
		return nil, s.notFound(uid)
	}
	return copyEnrollment(e), nil
}

func (s *InMemoryEnrollmentStore) notFound(uid string) error {
	return ierr.NewError("enrollment not found").
		WithHintf("Enrollment %s was not found", uid).
		WithReportableDetails(map[string]any{"uid": uid}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryEnrollmentStore) listMatches(ctx context.Context, filter *types.EnrollmentFilter) []*enrollment.Enrollment {
	var items []*enrollment.Enrollment
	for _, e := range s.enrollments {
		if e.IsDeleted || e.BusinessName != types.GetBusinessName(ctx) {
			continue
		}
		if !types.IsOperator(ctx) && e.UserID != types.GetUserID(ctx) {
			continue
		}
		if types.IsOperator(ctx) && filter.UserID != nil && e.UserID != *filter.UserID {
			continue
		}
		items = append(items, e)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].UID > items[j].UID
	})
	return items
}

func (s *InMemoryEnrollmentStore) List(ctx context.Context, filter *types.EnrollmentFilter) ([]*enrollment.Enrollment, error) {
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

	page := make([]*enrollment.Enrollment, 0, end-offset)
	for _, e := range items[offset:end] {
		page = append(page, copyEnrollment(e))
	}
	return page, nil
}

func (s *InMemoryEnrollmentStore) Count(ctx context.Context, filter *types.EnrollmentFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listMatches(ctx, filter)), nil
}

func (s *InMemoryEnrollmentStore) SoftDelete(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[uid]
	if !ok || e.IsDeleted || e.BusinessName != types.GetBusinessName(ctx) {
		return s.notFound(uid)
	}
	e.IsDeleted = true
	e.UpdatedAt = time.Now().UTC()
	e.UpdatedBy = types.GetUserID(ctx)
	return nil
}

func (s *InMemoryEnrollmentStore) MarkExpired(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.enrollments[uid]
	if !ok || e.IsDeleted || e.BusinessName != types.GetBusinessName(ctx) {
		return nil
	}
	e.Status = types.EnrollmentStatusExpired
	e.UpdatedAt = time.Now().UTC()
	e.UpdatedBy = types.GetUserID(ctx)
	return nil
}

func (s *InMemoryEnrollmentStore) FindActive(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*enrollment.Enrollment, error) {
	return s.findActive(ctx, q)
}

func (s *InMemoryEnrollmentStore) FindActiveForUpdate(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*enrollment.Enrollment, error) {
	return s.findActive(ctx, q)
}

func (s *InMemoryEnrollmentStore) findActive(ctx context.Context, q types.ActiveEnrollmentQuery) ([]*enrollment.Enrollment, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []*enrollment.Enrollment
	for _, e := range s.enrollments {
		if !s.matchesActive(e, q) {
			continue
		}
		items = append(items, e)
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if (a.Variant == nil) != (b.Variant == nil) {
			return b.Variant == nil
		}
		if (a.ExpiredAt == nil) != (b.ExpiredAt == nil) {
			return b.ExpiredAt == nil
		}
		if a.ExpiredAt != nil && b.ExpiredAt != nil && !a.ExpiredAt.Equal(*b.ExpiredAt) {
			return a.ExpiredAt.Before(*b.ExpiredAt)
		}
		return a.UID < b.UID
	})

	out := make([]*enrollment.Enrollment, 0, len(items))
	for _, e := range items {
		out = append(out, copyEnrollment(e))
	}
	return out, nil
}

func (s *InMemoryEnrollmentStore) matchesActive(e *enrollment.Enrollment, q types.ActiveEnrollmentQuery) bool {
	if e.BusinessName != q.BusinessName || e.UserID != q.UserID {
		return false
	}
	if e.IsDeleted || e.Status != types.EnrollmentStatusActive {
		return false
	}
	if !e.StartedAt.Before(q.Now) {
		return false
	}
	if !e.Bundles.Contains(q.Asset) {
		return false
	}
	switch e.AcquisitionType {
	case types.AcquisitionTypePurchase:
	case types.AcquisitionTypeBorrowed:
		if e.DueDate == nil || !e.DueDate.After(q.Now) || e.IsPaid {
			return false
		}
	default:
		return false
	}
	if e.ExpiredAt != nil && !e.ExpiredAt.After(q.Now) {
		return false
	}
	if e.Variant != nil && (q.Variant == nil || *e.Variant != *q.Variant) {
		return false
	}
	if q.EnrollmentID != nil && e.UID != *q.EnrollmentID {
		return false
	}
	return true
}

func (s *InMemoryEnrollmentStore) FindActiveFreemium(ctx context.Context, userID string, at time.Time) (*enrollment.Enrollment, error) {
	return s.findActiveFreemium(ctx, userID, at)
}

func (s *InMemoryEnrollmentStore) FindActiveFreemiumForUpdate(ctx context.Context, userID string, at time.Time) (*enrollment.Enrollment, error) {
	return s.findActiveFreemium(ctx, userID, at)
}

func (s *InMemoryEnrollmentStore) findActiveFreemium(ctx context.Context, userID string, at time.Time) (*enrollment.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *enrollment.Enrollment
	for _, e := range s.enrollments {
		if e.IsDeleted ||
			e.BusinessName != types.GetBusinessName(ctx) ||
			e.UserID != userID ||
			e.AcquisitionType != types.AcquisitionTypeFreemium ||
			e.Status != types.EnrollmentStatusActive {
			continue
		}
		if e.StartedAt.After(at) {
			continue
		}
		if newest == nil ||
			e.CreatedAt.After(newest.CreatedAt) ||
			(e.CreatedAt.Equal(newest.CreatedAt) && e.UID > newest.UID) {
			newest = e
		}
	}
	if newest == nil {
		return nil, nil
	}
	return copyEnrollment(newest), nil
}
