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

type EnrollmentHandler struct {
	service service.EnrollmentService
	logger  *logger.Logger
}

func NewEnrollmentHandler(service service.EnrollmentService, logger *logger.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		service: service,
		logger:  logger,
	}
}

// CreateEnrollment godoc
// @Summary Create a new enrollment
// @Description Grant a user a set of asset bundles. Operator principals only.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body dto.CreateEnrollmentRequest true "Create enrollment request"
// @Success 201 {object} dto.EnrollmentResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Router /enrollments [post]
func (h *EnrollmentHandler) CreateEnrollment(c *gin.Context) {
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateEnrollment(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetEnrollment godoc
// @Summary Get an enrollment
// @Description Get an enrollment by id, augmented with its current leftover bundles
// @Tags Enrollments
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} dto.EnrollmentResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Enrollment id is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetEnrollment(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListEnrollments godoc
// @Summary List enrollments
// @Description List enrollments for the calling principal's scope
// @Tags Enrollments
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Page offset"
// @Param user_id query string false "Filter by user (operators only)"
// @Success 200 {object} dto.ListEnrollmentsResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /enrollments [get]
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
	var filter types.EnrollmentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListEnrollments(c.Request.Context(), &filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteEnrollment godoc
// @Summary Delete an enrollment
// @Description Always rejected; enrollments end by natural expiry
// @Tags Enrollments
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Enrollment ID"
// @Failure 501 {object} errors.ErrorResponse
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) DeleteEnrollment(c *gin.Context) {
	if err := h.service.DeleteEnrollment(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
}
