package repository

import (
	"github.com/quotaflow/quotaflow/internal/domain/enrollment"
	"github.com/quotaflow/quotaflow/internal/domain/usage"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	pgRepo "github.com/quotaflow/quotaflow/internal/repository/postgres"
)

// NewEnrollmentRepository creates the postgres-backed enrollment repository
func NewEnrollmentRepository(db *postgres.DB, log *logger.Logger) enrollment.Repository {
	return pgRepo.NewEnrollmentRepository(db, log)
}

// NewUsageRepository creates the postgres-backed usage repository
func NewUsageRepository(db *postgres.DB, log *logger.Logger) usage.Repository {
	return pgRepo.NewUsageRepository(db, log)
}
