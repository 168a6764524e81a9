package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quotaflow/quotaflow/internal/cache"
	"github.com/quotaflow/quotaflow/internal/domain/bundle"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/types"
)

// currentLeftover derives the enrollment's current bundle state from the
// ledger: the newest usage row's leftover_bundles, or the original grant
// when no usage exists. The cached copy is only consulted on read paths;
// debit transactions always re-derive under the row lock.
func currentLeftover(ctx context.Context, params ServiceParams, e *enrollment.Enrollment, useCache bool) (bundle.Bundles, error) {
	key := cache.GenerateKey(cache.PrefixLeftover, e.UID)

	if useCache && params.Cache != nil {
		if v, ok := params.Cache.Get(ctx, key); ok {
			if b, ok := v.(bundle.Bundles); ok {
				return b.Clone(), nil
			}
		}
	}

	latest, err := params.UsageRepo.Latest(ctx, e.UID)
	if err != nil {
		return nil, err
	}

	leftover := e.Bundles.Clone()
	if latest != nil {
		leftover = latest.LeftoverBundles.Clone()
	}

	if useCache && params.Cache != nil {
		params.Cache.Set(ctx, key, leftover.Clone(), cache.DefaultExpiration)
	}
	return leftover, nil
}

// invalidateLeftover drops the cached leftover after a debit
func invalidateLeftover(ctx context.Context, params ServiceParams, enrollmentID string) {
	if params.Cache == nil {
		return
	}
	params.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixLeftover, enrollmentID))
	params.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixEnrollment, enrollmentID))
}

// publishWebhook emits a webhook event carrying the given payload. Failures
// are logged, never surfaced: webhook delivery must not fail a committed
// operation.
func publishWebhook(ctx context.Context, params ServiceParams, eventName, userID string, payload interface{}) {
	if params.WebhookPublisher == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		params.Logger.Errorw("failed to marshal webhook payload",
			"event_name", eventName,
			"error", err,
		)
		return
	}

	event := &types.WebhookEvent{
		ID:           types.GenerateEventID(),
		EventName:    eventName,
		BusinessName: types.GetBusinessName(ctx),
		UserID:       userID,
		Timestamp:    time.Now().UTC(),
		Payload:      raw,
	}

	if err := params.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		params.Logger.Errorw("failed to publish webhook event",
			"event_name", eventName,
			"error", err,
		)
	}
}
