package payload

import (
	"github.com/quotaflow/quotaflow/internal/service"
)

// Services bundles the domain services payload builders read from. The
// delivered payload always reflects current state, not the state at
// publish time.
type Services struct {
	Enrollment service.EnrollmentService
	Usage      service.UsageService
}

// NewServices creates a new Services instance
func NewServices(
	enrollment service.EnrollmentService,
	usage service.UsageService,
) *Services {
	return &Services{
		Enrollment: enrollment,
		Usage:      usage,
	}
}
