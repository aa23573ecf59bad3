package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umscc/permit-api/internal/models"
	appErrors "github.com/umscc/permit-api/pkg/errors"
	"github.com/umscc/permit-api/pkg/response"
)

type permitDataService interface {
	PreparePermitData(ctx context.Context, app *models.Application) (*models.PermitData, error)
}

type permitPDFRenderer interface {
	Render(data models.PermitData) ([]byte, error)
}

// PermitHandler serves the derived permit record and its printable form.
type PermitHandler struct {
	applications applicationService
	permits      permitDataService
	renderer     permitPDFRenderer
}

// NewPermitHandler constructs the handler.
func NewPermitHandler(applications applicationService, permits permitDataService, renderer permitPDFRenderer) *PermitHandler {
	return &PermitHandler{applications: applications, permits: permits, renderer: renderer}
}

func (h *PermitHandler) approvedPermitData(c *gin.Context) (*models.PermitData, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := h.applications.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		return nil, err
	}
	if app.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "permit data is only available for approved applications")
	}
	return h.permits.PreparePermitData(c.Request.Context(), app)
}

// Get godoc
// @Summary Derived permit record for an approved application
// @Tags Permits
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/permit [get]
func (h *PermitHandler) Get(c *gin.Context) {
	data, err := h.approvedPermitData(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, data, nil)
}

// Download godoc
// @Summary Printable permit PDF for an approved application
// @Tags Permits
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200
// @Router /applications/{id}/permit/pdf [get]
func (h *PermitHandler) Download(c *gin.Context) {
	data, err := h.approvedPermitData(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	pdf, err := h.renderer.Render(*data)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render permit"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", data.PermitNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
