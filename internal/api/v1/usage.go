package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quotaflow/quotaflow/internal/api/dto"
	ierr "github.com/quotaflow/quotaflow/internal/errors"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/service"
	"github.com/quotaflow/quotaflow/internal/types"
)

type UsageHandler struct {
	service service.UsageService
	logger  *logger.Logger
}

func NewUsageHandler(service service.UsageService, logger *logger.Logger) *UsageHandler {
	return &UsageHandler{
		service: service,
		logger:  logger,
	}
}

// CreateUsage godoc
// @Summary Record usage
// @Description Debit the calling user's quota for an asset. The debit may
// @Description split across several enrollments; one usage row is returned
// @Description per split. Rejected entirely when quota is insufficient.
// @Tags Usages
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body dto.CreateUsageRequest true "Create usage request"
// @Success 201 {array} dto.UsageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /usages [post]
func (h *UsageHandler) CreateUsage(c *gin.Context) {
	var req dto.CreateUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateUsage(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetUsage godoc
// @Summary Get a usage row
// @Description Get one ledger entry by id
// @Tags Usages
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Usage ID"
// @Success 200 {object} dto.UsageResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /usages/{id} [get]
func (h *UsageHandler) GetUsage(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Usage id is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetUsage(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListUsages godoc
// @Summary List usage rows
// @Description List ledger entries for the calling principal's scope
// @Tags Usages
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Param user_id query string false "Filter by user (operators only)"
// @Param enrollment_id query string false "Filter by enrollment"
// @Success 200 {object} dto.ListUsagesResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /usages [get]
func (h *UsageHandler) ListUsages(c *gin.Context) {
	var filter types.UsageFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListUsages(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteUsage godoc
// @Summary Delete a usage row
// @Description Always rejected; the ledger is append-only
// @Tags Usages
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Usage ID"
// @Failure 501 {object} errors.ErrorResponse
// @Router /usages/{id} [delete]
func (h *UsageHandler) DeleteUsage(c *gin.Context) {
	if err := h.service.DeleteUsage(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
}
