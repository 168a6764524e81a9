package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quotaflow/quotaflow/internal/cache"
	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	"github.com/quotaflow/quotaflow/internal/types"
	"github.com/quotaflow/quotaflow/internal/validator"
	webhookPublisher "github.com/quotaflow/quotaflow/internal/webhook/publisher"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	EnrollmentRepo enrollment.Repository
	UsageRepo      usage.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	pubsub           *InMemoryPubSub
	webhookPublisher webhookPublisher.WebhookPublisher
	db               postgres.IClient
	cache            cache.Cache
	logger           *logger.Logger
	config           *config.Configuration
	now              time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	var err error
	s.logger, err = logger.NewLogger(&config.Configuration{
		Logging: config.LoggingConfig{
			Level: types.LogLevelInfo,
		},
	})
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.config = s.testConfig()
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

// testConfig returns a fresh configuration so per-test mutations, freemium
// settings in particular, never leak between tests
func (s *BaseServiceTestSuite) testConfig() *config.Configuration {
	return &config.Configuration{
		Logging: config.LoggingConfig{
			Level: types.LogLevelInfo,
		},
		Cache: config.CacheConfig{
			Enabled: true,
		},
		Webhook: config.WebhookConfig{
			Enabled: true,
			Topic:   "webhooks",
			PubSub:  types.MemoryPubSub,
		},
	}
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	enrollmentStore := NewInMemoryEnrollmentStore()
	s.stores = Stores{
		EnrollmentRepo: enrollmentStore,
		UsageRepo:      NewInMemoryUsageStore(enrollmentStore),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache(s.config)
	s.pubsub = NewInMemoryPubSub()

	pub, err := webhookPublisher.NewPublisher(s.pubsub, s.config, s.logger)
	if err != nil {
		s.T().Fatalf("failed to create webhook publisher: %v", err)
	}
	s.webhookPublisher = pub
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.EnrollmentRepo.(*InMemoryEnrollmentStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
	s.pubsub.ClearMessages()
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// SetContext replaces the test context, e.g. to act as an end user
func (s *BaseServiceTestSuite) SetContext(ctx context.Context) {
	s.ctx = ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPubSub returns the in-memory pubsub carrying published webhook messages
func (s *BaseServiceTestSuite) GetPubSub() *InMemoryPubSub {
	return s.pubsub
}

// GetWebhookPublisher returns the test webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() webhookPublisher.WebhookPublisher {
	return s.webhookPublisher
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
