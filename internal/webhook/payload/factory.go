package payload

import (
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/types"
)

// PayloadBuilderFactory interface for getting event-specific payload builders
type PayloadBuilderFactory interface {
	GetBuilder(eventType string) (PayloadBuilder, error)
}

type payloadBuilderFactory struct {
	builders map[string]func() PayloadBuilder
	services *Services
}

// NewPayloadBuilderFactory creates a new factory with registered builders
func NewPayloadBuilderFactory(services *Services) PayloadBuilderFactory {
	f := &payloadBuilderFactory{
		builders: make(map[string]func() PayloadBuilder),
		services: services,
	}

	f.builders[types.WebhookEventEnrollmentCreated] = func() PayloadBuilder {
		return NewEnrollmentPayloadBuilder(f.services)
	}
	f.builders[types.WebhookEventEnrollmentExpired] = func() PayloadBuilder {
		return NewEnrollmentPayloadBuilder(f.services)
	}
	f.builders[types.WebhookEventEnrollmentDepleted] = func() PayloadBuilder {
		return NewEnrollmentPayloadBuilder(f.services)
	}
	f.builders[types.WebhookEventUsageCommitted] = func() PayloadBuilder {
		return NewUsagePayloadBuilder(f.services)
	}

	return f
}

func (f *payloadBuilderFactory) GetBuilder(eventType string) (PayloadBuilder, error) {
	builderFn, ok := f.builders[eventType]
	if !ok {
		return nil, ierr.NewError("unknown webhook event").
			WithHintf("No payload builder registered for %s", eventType).
			Mark(ierr.ErrValidation)
	}
	return builderFn(), nil
}
