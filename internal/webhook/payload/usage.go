package payload

import (
	"context"
	"encoding/json"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// UsageWebhookPayload is the delivered body for usage events
type UsageWebhookPayload struct {
	EventName string             `json:"event_name"`
	Usage     *dto.UsageResponse `json:"usage"`
}

type usagePayloadBuilder struct {
	services *Services
}

// NewUsagePayloadBuilder creates a builder for usage events
func NewUsagePayloadBuilder(services *Services) PayloadBuilder {
	return &usagePayloadBuilder{services: services}
}

func (b *usagePayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var ref struct {
		UsageID string `json:"usage_id"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid usage event payload").
			Mark(ierr.ErrValidation)
	}
	if ref.UsageID == "" {
		return nil, ierr.NewError("usage_id missing in event payload").
			Mark(ierr.ErrValidation)
	}

	resp, err := b.services.Usage.GetUsage(ctx, ref.UsageID)
	if err != nil {
		return nil, err
	}

	return json.Marshal(UsageWebhookPayload{
		EventName: eventType,
		Usage:     resp,
	})
}
