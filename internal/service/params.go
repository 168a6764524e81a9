package service

import (
	"github.com/quotaflow/quotaflow/internal/cache"
	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	webhookPublisher "github.com/quotaflow/quotaflow/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	EnrollmentRepo enrollment.Repository
	UsageRepo      usage.Repository

	// Publishers and cache
	WebhookPublisher webhookPublisher.WebhookPublisher
	Cache            cache.Cache
}

// NewServiceParams assembles the common service dependencies
func NewServiceParams(
	logger *logger.Logger,
	cfg *config.Configuration,
	db *postgres.DB,
	enrollmentRepo enrollment.Repository,
	usageRepo usage.Repository,
	webhookPub webhookPublisher.WebhookPublisher,
	c cache.Cache,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           cfg,
		DB:               db,
		EnrollmentRepo:   enrollmentRepo,
		UsageRepo:        usageRepo,
		WebhookPublisher: webhookPub,
		Cache:            c,
	}
}
