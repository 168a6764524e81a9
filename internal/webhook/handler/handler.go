package handler

import (
	"github.com/ThreeDotsLabs/watermill/message"
	jsoniter "github.com/json-iterator/go"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/httpclient"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/pubsub"
	pubsubRouter "github.com/quotaflow/quotaflow/internal/pubsub/router"
	"github.com/quotaflow/quotaflow/internal/sentry"
	"github.com/quotaflow/quotaflow/internal/types"
	"github.com/quotaflow/quotaflow/internal/webhook/payload"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler interface for processing webhook events
type Handler interface {
	RegisterHandler(router *pubsubRouter.Router)
}

type handler struct {
	pubSub  pubsub.PubSub
	config  *config.WebhookConfig
	factory payload.PayloadBuilderFactory
	client  httpclient.Client
	logger  *logger.Logger
	sentry  *sentry.Service
}

// NewHandler creates a new webhook delivery handler
func NewHandler(
	pubSub pubsub.PubSub,
	cfg *config.Configuration,
	factory payload.PayloadBuilderFactory,
	client httpclient.Client,
	logger *logger.Logger,
	sentry *sentry.Service,
) (Handler, error) {
	return &handler{
		pubSub:  pubSub,
		config:  &cfg.Webhook,
		factory: factory,
		client:  client,
		logger:  logger,
		sentry:  sentry,
	}, nil
}

func (h *handler) RegisterHandler(router *pubsubRouter.Router) {
	router.AddNoPublishHandler(
		"webhook_handler",
		h.config.Topic,
		h.pubSub,
		h.processMessage,
	)
}

// processMessage delivers a single webhook message to the business endpoint
func (h *handler) processMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event types.WebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.logger.Errorw("failed to unmarshal webhook event",
			"error", err,
			"message_uuid", msg.UUID,
		)
		return nil // malformed payloads are never retried
	}

	// Restore the principal scope the event was emitted under
	ctx = types.SetBusinessName(ctx, event.BusinessName)
	ctx = types.SetUserID(ctx, event.UserID)
	ctx = types.SetPrincipalType(ctx, types.PrincipalTypeOperator)

	businessCfg, ok := h.config.Businesses[event.BusinessName]
	if !ok {
		h.logger.Warnw("webhook config not found for business",
			"business_name", event.BusinessName,
			"message_uuid", msg.UUID,
		)
		return nil
	}
	if !businessCfg.Enabled {
		h.logger.Debugw("webhooks disabled for business",
			"business_name", event.BusinessName,
		)
		return nil
	}
	for _, excluded := range businessCfg.ExcludedEvents {
		if excluded == event.EventName {
			h.logger.Debugw("event excluded for business",
				"business_name", event.BusinessName,
				"event", event.EventName,
			)
			return nil
		}
	}

	builder, err := h.factory.GetBuilder(event.EventName)
	if err != nil {
		return err
	}

	body, err := builder.BuildPayload(ctx, event.EventName, event.Payload)
	if err != nil {
		return err
	}

	req := &httpclient.Request{
		Method:  "POST",
		URL:     businessCfg.Endpoint,
		Headers: businessCfg.Headers,
		Body:    body,
	}

	resp, err := h.client.Send(ctx, req)
	if err != nil {
		h.logger.Errorw("failed to deliver webhook",
			"error", err,
			"message_uuid", msg.UUID,
			"business_name", event.BusinessName,
			"event", event.EventName,
		)
		return err
	}

	h.logger.Infow("webhook delivered",
		"message_uuid", msg.UUID,
		"business_name", event.BusinessName,
		"event", event.EventName,
		"status_code", resp.StatusCode,
	)
	return nil
}
