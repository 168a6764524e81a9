package webhook

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/pubsub"
	"github.com/quotaflow/quotaflow/internal/pubsub/kafka"
	"github.com/quotaflow/quotaflow/internal/pubsub/memory"
	"github.com/quotaflow/quotaflow/internal/service"
	"github.com/quotaflow/quotaflow/internal/types"
	"github.com/quotaflow/quotaflow/internal/webhook/handler"
	"github.com/quotaflow/quotaflow/internal/webhook/payload"
	"github.com/quotaflow/quotaflow/internal/webhook/publisher"
)

// Module provides all webhook-related dependencies
var Module = fx.Options(
	fx.Provide(
		providePubSub,
	),

	fx.Provide(
		publisher.NewPublisher,
		handler.NewHandler,
		providePayloadBuilderFactory,
		NewWebhookService,
	),
)

// providePayloadBuilderFactory creates a new payload builder factory with all required services
func providePayloadBuilderFactory(
	enrollmentService service.EnrollmentService,
	usageService service.UsageService,
) payload.PayloadBuilderFactory {
	services := payload.NewServices(
		enrollmentService,
		usageService,
	)
	return payload.NewPayloadBuilderFactory(services)
}

func providePubSub(
	cfg *config.Configuration,
	logger *logger.Logger,
) (pubsub.PubSub, error) {
	switch cfg.Webhook.PubSub {
	case types.MemoryPubSub:
		return memory.NewPubSub(cfg, logger), nil
	case types.KafkaPubSub:
		return kafka.NewPubSub(cfg, logger)
	}
	return nil, fmt.Errorf("unsupported pubsub type: %s", cfg.Webhook.PubSub)
}
