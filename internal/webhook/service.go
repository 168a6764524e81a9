package webhook

import (
	"context"
	"fmt"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/httpclient"
	"github.com/quotaflow/quotaflow/internal/logger"
	pubsubRouter "github.com/quotaflow/quotaflow/internal/pubsub/router"
	"github.com/quotaflow/quotaflow/internal/webhook/handler"
	"github.com/quotaflow/quotaflow/internal/webhook/payload"
	"github.com/quotaflow/quotaflow/internal/webhook/publisher"
)

// WebhookService orchestrates webhook operations
type WebhookService struct {
	config    *config.Configuration
	publisher publisher.WebhookPublisher
	handler   handler.Handler
	factory   payload.PayloadBuilderFactory
	client    httpclient.Client
	router    *pubsubRouter.Router
	logger    *logger.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	cfg *config.Configuration,
	publisher publisher.WebhookPublisher,
	h handler.Handler,
	f payload.PayloadBuilderFactory,
	c httpclient.Client,
	router *pubsubRouter.Router,
	l *logger.Logger,
) *WebhookService {
	return &WebhookService{
		config:    cfg,
		publisher: publisher,
		handler:   h,
		factory:   f,
		client:    c,
		router:    router,
		logger:    l,
	}
}

// Start registers the delivery handler on the router
func (s *WebhookService) Start(ctx context.Context) error {
	if !s.config.Webhook.Enabled {
		s.logger.Info("webhook service disabled")
		return nil
	}

	s.logger.Debug("starting webhook service")
	s.handler.RegisterHandler(s.router)

	s.logger.Info("webhook service started successfully")
	return nil
}

// Stop stops the webhook service
func (s *WebhookService) Stop() error {
	s.logger.Debug("stopping webhook service")

	if err := s.publisher.Close(); err != nil {
		s.logger.Errorw("failed to close webhook publisher", "error", err)
		return fmt.Errorf("failed to close webhook publisher: %w", err)
	}

	s.logger.Info("webhook service stopped successfully")
	return nil
}
