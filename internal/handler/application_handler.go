package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umscc/permit-api/internal/dto"
	"github.com/umscc/permit-api/internal/models"
	appErrors "github.com/umscc/permit-api/pkg/errors"
	"github.com/umscc/permit-api/pkg/response"
)

type applicationService interface {
	Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error)
	List(ctx context.Context, query dto.ApplicationQuery, actor *models.JWTClaims) ([]models.Application, error)
	AddComment(ctx context.Context, applicationID string, req dto.CommentRequest, actor *models.JWTClaims) (*models.Comment, error)
	Activity(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.ActivityLog, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type workflowService interface {
	ApplyAction(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.WorkflowActionRequest) (*models.Application, error)
	AvailableActions(app *models.Application, actor *models.JWTClaims) []models.WorkflowAction
}

// ApplicationHandler exposes REST endpoints for permit applications.
type ApplicationHandler struct {
	apps     applicationService
	workflow workflowService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(apps applicationService, workflow workflowService) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, workflow: workflow}
}

// Create godoc
// @Summary Register a new permit application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application payload"))
		return
	}
	app, err := h.apps.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List applications by status
// @Tags Applications
// @Produce json
// @Param status query string false "Application status"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ApplicationQuery{
		Status: models.ApplicationStatus(strings.TrimSpace(c.Query("status"))),
	}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			query.Offset = v
		}
	}
	apps, err := h.apps.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Get godoc
// @Summary Get application detail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Action godoc
// @Summary Apply a workflow action
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.WorkflowActionRequest true "Action"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/actions [post]
func (h *ApplicationHandler) Action(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.WorkflowActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid action payload"))
		return
	}
	app, err := h.workflow.ApplyAction(c.Request.Context(), c.Param("id"), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// AvailableActions godoc
// @Summary List the actions the caller may take
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/actions [get]
func (h *ApplicationHandler) AvailableActions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	result := dto.AvailableActionsResponse{
		ApplicationID: app.ID,
		Status:        app.Status,
		CurrentStage:  app.CurrentStage,
		Actions:       h.workflow.AvailableActions(app, claims),
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AddComment godoc
// @Summary Append a comment
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.CommentRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/comments [post]
func (h *ApplicationHandler) AddComment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid comment payload"))
		return
	}
	comment, err := h.apps.AddComment(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// Activity godoc
// @Summary Get the application audit trail
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/activity [get]
func (h *ApplicationHandler) Activity(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	logs, err := h.apps.Activity(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Delete godoc
// @Summary Administratively delete an application
// @Tags Applications
// @Param id path string true "Application ID"
// @Success 204
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.apps.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
