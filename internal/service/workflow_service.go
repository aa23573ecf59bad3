package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/dto"
	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/internal/repository"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

// stageReviewer binds each review stage to exactly one role. ICT overrides
// every gate.
var stageReviewer = map[int]models.UserRole{
	1: models.RoleChairperson,
	2: models.RoleCatchmentManager,
	3: models.RoleCatchmentChairperson,
	4: models.RolePermitSupervisor,
}

type workflowStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) error
}

type permitPreparer interface {
	PreparePermitData(ctx context.Context, app *models.Application) (*models.PermitData, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

type transitionRecorder interface {
	RecordTransition(action string, outcome string)
}

// WorkflowService governs the permit application review pipeline.
type WorkflowService struct {
	repo    workflowStore
	permits permitPreparer
	cache   cacheInvalidator
	metrics transitionRecorder
	logger  *zap.Logger
	now     func() time.Time
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowCache attaches a cache invalidated on committed transitions.
func WithWorkflowCache(cache cacheInvalidator) WorkflowServiceOption {
	return func(s *WorkflowService) { s.cache = cache }
}

// WithWorkflowMetrics attaches the transition counter.
func WithWorkflowMetrics(metrics transitionRecorder) WorkflowServiceOption {
	return func(s *WorkflowService) { s.metrics = metrics }
}

// WithWorkflowClock overrides the time source (used in tests).
func WithWorkflowClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWorkflowService constructs the service with defaults.
func NewWorkflowService(repo workflowStore, permits permitPreparer, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		repo:    repo,
		permits: permits,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// ApplyAction validates and commits one workflow transition. The state write,
// the audit-log append and any comment land in a single transaction; a
// concurrent modification surfaces as a conflict.
func (s *WorkflowService) ApplyAction(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.WorkflowActionRequest) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	var params repository.TransitionParams
	switch req.Action {
	case models.ActionSubmit:
		params, err = s.submit(app, actor)
	case models.ActionAdvance:
		params, err = s.advance(app, actor, req.Comment)
	case models.ActionReject:
		params, err = s.reject(app, actor, req.Reason)
	case models.ActionFinalize:
		params, err = s.finalize(ctx, app, actor)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workflow action: %s", req.Action))
	}
	if err != nil {
		s.record(string(req.Action), "denied")
		return nil, err
	}

	params.ID = app.ID
	params.ExpectedVersion = app.Version
	params.Log.UserID = actor.UserID

	if err := s.repo.ApplyTransition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.record(string(req.Action), "conflict")
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified by another reviewer")
		}
		s.record(string(req.Action), "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transition")
	}

	app.Status = params.Status
	app.CurrentStage = params.CurrentStage
	app.Version++
	if params.SubmittedAt != nil {
		app.SubmittedAt = params.SubmittedAt
	}
	if params.RejectionReason != nil {
		app.RejectionReason = params.RejectionReason
	}
	if params.PermitNumber != nil {
		app.PermitNumber = params.PermitNumber
	}
	if params.ApprovedAt != nil {
		app.ApprovedAt = params.ApprovedAt
	}
	if params.ValidUntil != nil {
		app.ValidUntil = params.ValidUntil
	}

	s.record(string(req.Action), "success")
	s.invalidate(ctx)
	s.logger.Info("workflow transition",
		zap.String("application_id", app.ApplicationID),
		zap.String("action", string(req.Action)),
		zap.String("actor", actor.UserID),
		zap.String("status", string(app.Status)),
		zap.Int("stage", app.CurrentStage),
	)
	return app, nil
}

// AvailableActions returns the transitions the actor may legally take, used
// by the presentation layer to render only legal buttons.
func (s *WorkflowService) AvailableActions(app *models.Application, actor *models.JWTClaims) []models.WorkflowAction {
	actions := make([]models.WorkflowAction, 0, 3)
	if app == nil || actor == nil || app.Status.Terminal() {
		return actions
	}
	switch app.Status {
	case models.StatusUnsubmitted:
		if actor.Role == models.RoleICT || (actor.Role == models.RolePermittingOfficer && actor.UserID == app.CreatedBy) {
			actions = append(actions, models.ActionSubmit)
		}
	case models.StatusSubmitted, models.StatusUnderReview:
		if !s.actorReviews(app.CurrentStage, actor) {
			return actions
		}
		if app.CurrentStage < models.LastStage {
			actions = append(actions, models.ActionAdvance)
		} else if actor.Role == models.RolePermitSupervisor || actor.Role == models.RoleICT {
			actions = append(actions, models.ActionFinalize)
		}
		actions = append(actions, models.ActionReject)
	}
	return actions
}

func (s *WorkflowService) submit(app *models.Application, actor *models.JWTClaims) (repository.TransitionParams, error) {
	if app.Status != models.StatusUnsubmitted {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrInvalidState, "only unsubmitted applications can be submitted")
	}
	if actor.Role != models.RoleICT {
		if actor.Role != models.RolePermittingOfficer || actor.UserID != app.CreatedBy {
			return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrForbidden, "only the creating permitting officer may submit")
		}
	}
	now := s.now()
	return repository.TransitionParams{
		Status:       models.StatusSubmitted,
		CurrentStage: models.FirstStage,
		SubmittedAt:  &now,
		Log:          s.logEntry(models.ActionSubmit, map[string]interface{}{"stage": models.FirstStage}),
	}, nil
}

func (s *WorkflowService) advance(app *models.Application, actor *models.JWTClaims, comment string) (repository.TransitionParams, error) {
	if err := s.reviewable(app, actor); err != nil {
		return repository.TransitionParams{}, err
	}
	if app.CurrentStage >= models.LastStage {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrInvalidState, "application is at the final stage; finalize instead")
	}
	nextStage := app.CurrentStage + 1
	params := repository.TransitionParams{
		Status:       models.StatusUnderReview,
		CurrentStage: nextStage,
		Log:          s.logEntry(models.ActionAdvance, map[string]interface{}{"from_stage": app.CurrentStage, "to_stage": nextStage}),
	}
	if strings.TrimSpace(comment) != "" {
		params.Comment = &models.Comment{
			UserID:   actor.UserID,
			UserType: actor.Role,
			Content:  strings.TrimSpace(comment),
		}
	}
	return params, nil
}

func (s *WorkflowService) reject(app *models.Application, actor *models.JWTClaims, reason string) (repository.TransitionParams, error) {
	if err := s.reviewable(app, actor); err != nil {
		return repository.TransitionParams{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}
	// Stage freezes where the rejection occurred.
	return repository.TransitionParams{
		Status:          models.StatusRejected,
		CurrentStage:    app.CurrentStage,
		RejectionReason: &reason,
		Log:             s.logEntry(models.ActionReject, map[string]interface{}{"stage": app.CurrentStage, "reason": reason}),
		Comment: &models.Comment{
			UserID:   actor.UserID,
			UserType: actor.Role,
			Content:  reason,
		},
	}, nil
}

func (s *WorkflowService) finalize(ctx context.Context, app *models.Application, actor *models.JWTClaims) (repository.TransitionParams, error) {
	if app.Status.Terminal() || app.Status == models.StatusUnsubmitted {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrInvalidState, "application is not under review")
	}
	if app.CurrentStage != models.LastStage {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrInvalidState, "application has not reached the final stage")
	}
	if actor.Role != models.RolePermitSupervisor && actor.Role != models.RoleICT {
		return repository.TransitionParams{}, appErrors.Clone(appErrors.ErrForbidden, "only the permit supervisor may finalize")
	}

	approvedAt := s.now()
	candidate := *app
	candidate.ApprovedAt = &approvedAt

	// Finalize is all-or-nothing: a derivation failure leaves the
	// application in its prior state.
	data, err := s.permits.PreparePermitData(ctx, &candidate)
	if err != nil {
		return repository.TransitionParams{}, err
	}

	return repository.TransitionParams{
		Status:       models.StatusApproved,
		CurrentStage: app.CurrentStage,
		PermitNumber: &data.PermitNumber,
		ApprovedAt:   &approvedAt,
		ValidUntil:   &data.ValidUntil,
		Log: s.logEntry(models.ActionFinalize, map[string]interface{}{
			"permit_number": data.PermitNumber,
			"valid_until":   data.ValidUntil,
		}),
	}, nil
}

// reviewable enforces the stage gate shared by advance and reject.
func (s *WorkflowService) reviewable(app *models.Application, actor *models.JWTClaims) error {
	if app.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrInvalidState, "application review is already finished")
	}
	if app.Status == models.StatusUnsubmitted {
		return appErrors.Clone(appErrors.ErrInvalidState, "application has not been submitted")
	}
	if !s.actorReviews(app.CurrentStage, actor) {
		reviewer := stageReviewer[app.CurrentStage]
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("stage %d is reviewed by %s", app.CurrentStage, reviewer))
	}
	return nil
}

func (s *WorkflowService) actorReviews(stage int, actor *models.JWTClaims) bool {
	if actor.Role == models.RoleICT {
		return true
	}
	return stageReviewer[stage] == actor.Role
}

func (s *WorkflowService) logEntry(action models.WorkflowAction, detail map[string]interface{}) models.ActivityLog {
	payload, err := json.Marshal(detail)
	if err != nil {
		payload = []byte("{}")
	}
	return models.ActivityLog{
		Action: string(action),
		Detail: payload,
	}
}

func (s *WorkflowService) record(action, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(action, outcome)
	}
}

func (s *WorkflowService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "applications:*"); err != nil {
		s.logger.Warn("failed to invalidate application cache", zap.Error(err))
	}
}
