package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/dto"
	"github.com/umscc/permit-api/internal/models"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, applicationID string) ([]models.Comment, error)
	ListActivity(ctx context.Context, applicationID string) ([]models.ActivityLog, error)
	ListDocuments(ctx context.Context, applicationID string) ([]models.DocumentRef, error)
	Delete(ctx context.Context, id string) error
}

// ApplicationService owns application CRUD outside of workflow transitions.
type ApplicationService struct {
	repo      applicationStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewApplicationService constructs the service.
func NewApplicationService(repo applicationStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Create registers a new application in unsubmitted status. Only permitting
// officers open applications; ICT retains its override.
func (s *ApplicationService) Create(ctx context.Context, req dto.CreateApplicationRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RolePermittingOfficer && actor.Role != models.RoleICT {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only permitting officers may create applications")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	app := &models.Application{
		ApplicantName:     strings.TrimSpace(req.ApplicantName),
		PhysicalAddress:   strings.TrimSpace(req.PhysicalAddress),
		PostalAddress:     strings.TrimSpace(req.PostalAddress),
		CellularNumber:    strings.TrimSpace(req.CellularNumber),
		EmailAddress:      strings.TrimSpace(req.EmailAddress),
		PermitType:        req.PermitType,
		WaterSource:       strings.TrimSpace(req.WaterSource),
		WaterAllocation:   req.WaterAllocation,
		GPSX:              req.GPSX,
		GPSY:              req.GPSY,
		LandSizeHectares:  req.LandSizeHectares,
		NumberOfBoreholes: req.NumberOfBoreholes,
		IntendedUse:       strings.TrimSpace(req.IntendedUse),
		Status:            models.StatusUnsubmitted,
		CreatedBy:         actor.UserID,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	s.invalidate(ctx)
	s.logger.Info("application created",
		zap.String("application_id", app.ApplicationID),
		zap.String("created_by", actor.UserID),
	)
	return app, nil
}

// Get loads an application with its comments and documents. Unsubmitted
// applications are visible only to their creator (and ICT).
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.Status == models.StatusUnsubmitted && actor.Role != models.RoleICT && actor.UserID != app.CreatedBy {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unsubmitted applications are visible to their creator only")
	}
	comments, err := s.repo.ListComments(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comments")
	}
	docs, err := s.repo.ListDocuments(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	app.Comments = comments
	app.Documents = docs
	return app, nil
}

// List returns applications filtered by status, ordered by submission time
// ascending. Results are cached per status page when caching is enabled.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery, actor *models.JWTClaims) ([]models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApplicationFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if actor.Role == models.RolePermittingOfficer && query.Status == models.StatusUnsubmitted {
		filter.CreatedBy = actor.UserID
	}

	cacheKey := fmt.Sprintf("applications:%s:%s:%d:%d", filter.Status, filter.CreatedBy, filter.Limit, filter.Offset)
	var cached []models.Application
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	apps, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	if err := s.cache.Set(ctx, cacheKey, apps, 0); err != nil {
		s.logger.Warn("failed to cache application list", zap.Error(err))
	}
	return apps, nil
}

// AddComment appends a review note outside of a transition.
func (s *ApplicationService) AddComment(ctx context.Context, applicationID string, req dto.CommentRequest, actor *models.JWTClaims) (*models.Comment, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	comment := &models.Comment{
		ApplicationID: app.ID,
		UserID:        actor.UserID,
		UserType:      actor.Role,
		Content:       strings.TrimSpace(req.Content),
		IsInternal:    req.IsInternal,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// Activity returns the audit trail for an application.
func (s *ApplicationService) Activity(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.ActivityLog, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.repo.GetByID(ctx, applicationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	logs, err := s.repo.ListActivity(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return logs, nil
}

// Delete is the administrative removal: ICT only, idempotent, irreversible.
func (s *ApplicationService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleICT {
		return appErrors.Clone(appErrors.ErrForbidden, "only ICT may delete applications")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete application")
	}
	s.invalidate(ctx)
	s.logger.Info("application deleted", zap.String("id", id), zap.String("actor", actor.UserID))
	return nil
}

func (s *ApplicationService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "applications:*"); err != nil {
		s.logger.Warn("failed to invalidate application cache", zap.Error(err))
	}
}
