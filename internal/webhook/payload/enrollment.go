package payload

import (
	"context"
	"encoding/json"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// EnrollmentWebhookPayload is the delivered body for enrollment events
type EnrollmentWebhookPayload struct {
	EventName  string                  `json:"event_name"`
	Enrollment *dto.EnrollmentResponse `json:"enrollment"`
	Asset      string                  `json:"asset,omitempty"`
}

type enrollmentPayloadBuilder struct {
	services *Services
}

// NewEnrollmentPayloadBuilder creates a builder for enrollment events
func NewEnrollmentPayloadBuilder(services *Services) PayloadBuilder {
	return &enrollmentPayloadBuilder{services: services}
}

func (b *enrollmentPayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var ref struct {
		EnrollmentID string `json:"enrollment_id"`
		Asset        string `json:"asset,omitempty"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid enrollment event payload").
			Mark(ierr.ErrValidation)
	}
	if ref.EnrollmentID == "" {
		return nil, ierr.NewError("enrollment_id missing in event payload").
			Mark(ierr.ErrValidation)
	}

	resp, err := b.services.Enrollment.GetEnrollment(ctx, ref.EnrollmentID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(EnrollmentWebhookPayload{
		EventName:  eventType,
		Enrollment: resp,
		Asset:      ref.Asset,
	})
}
