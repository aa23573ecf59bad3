package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/dto"
	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/internal/repository"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

type mockWorkflowStore struct {
	app      *models.Application
	applied  []repository.TransitionParams
	applyErr error
}

func (m *mockWorkflowStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	if m.app == nil || m.app.ID != id {
		return nil, sql.ErrNoRows
	}
	cp := *m.app
	return &cp, nil
}

func (m *mockWorkflowStore) ApplyTransition(ctx context.Context, params repository.TransitionParams) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied = append(m.applied, params)
	return nil
}

type mockPermitPreparer struct {
	data *models.PermitData
	err  error
}

func (m *mockPermitPreparer) PreparePermitData(ctx context.Context, app *models.Application) (*models.PermitData, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

type mockInvalidator struct {
	patterns []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func reviewerFor(stage int) *models.JWTClaims {
	roles := map[int]models.UserRole{
		1: models.RoleChairperson,
		2: models.RoleCatchmentManager,
		3: models.RoleCatchmentChairperson,
		4: models.RolePermitSupervisor,
	}
	return &models.JWTClaims{UserID: "reviewer", Role: roles[stage]}
}

func testApplication(status models.ApplicationStatus, stage int) *models.Application {
	return &models.Application{
		ID:                "a1",
		ApplicationID:     "APP-001",
		ApplicantName:     "T. Moyo",
		PhysicalAddress:   "12 Samora Machel Ave, Harare",
		PermitType:        models.PermitTypeIrrigation,
		WaterSource:       "borehole",
		WaterAllocation:   10,
		LandSizeHectares:  4.5,
		NumberOfBoreholes: 2,
		IntendedUse:       "irrigation",
		Status:            status,
		CurrentStage:      stage,
		CreatedBy:         "officer-1",
		Version:           3,
	}
}

func TestWorkflowServiceSubmit(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnsubmitted, 0)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	actor := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	app, err := svc.ApplyAction(context.Background(), "a1", actor, dto.WorkflowActionRequest{Action: models.ActionSubmit})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Equal(t, models.FirstStage, app.CurrentStage)
	require.NotNil(t, app.SubmittedAt)
	assert.Equal(t, 4, app.Version)

	require.Len(t, store.applied, 1)
	params := store.applied[0]
	assert.Equal(t, "a1", params.ID)
	assert.Equal(t, 3, params.ExpectedVersion)
	assert.Equal(t, string(models.ActionSubmit), params.Log.Action)
	assert.Equal(t, "officer-1", params.Log.UserID)
}

func TestWorkflowServiceSubmitWrongCreator(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnsubmitted, 0)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	actor := &models.JWTClaims{UserID: "officer-2", Role: models.RolePermittingOfficer}
	_, err := svc.ApplyAction(context.Background(), "a1", actor, dto.WorkflowActionRequest{Action: models.ActionSubmit})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, store.applied)
}

func TestWorkflowServiceAdvanceEachStage(t *testing.T) {
	for stage := 1; stage < models.LastStage; stage++ {
		store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, stage)}
		if stage == 1 {
			store.app.Status = models.StatusSubmitted
		}
		svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

		app, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(stage), dto.WorkflowActionRequest{Action: models.ActionAdvance})
		require.NoError(t, err, "stage %d", stage)
		assert.Equal(t, stage+1, app.CurrentStage)
		assert.Equal(t, models.StatusUnderReview, app.Status)
	}
}

func TestWorkflowServiceAdvanceWrongReviewer(t *testing.T) {
	for stage := 1; stage < models.LastStage; stage++ {
		store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, stage)}
		svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

		wrong := reviewerFor(stage + 1)
		_, err := svc.ApplyAction(context.Background(), "a1", wrong, dto.WorkflowActionRequest{Action: models.ActionAdvance})
		require.Error(t, err, "stage %d", stage)
		assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	}
}

func TestWorkflowServiceAdvanceAtFinalStage(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, models.LastStage)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	_, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(models.LastStage), dto.WorkflowActionRequest{Action: models.ActionAdvance})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceRejectRequiresReason(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, 2)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	_, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(2), dto.WorkflowActionRequest{Action: models.ActionReject, Reason: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.applied)
}

func TestWorkflowServiceRejectFreezesStage(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, 3)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	app, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(3), dto.WorkflowActionRequest{Action: models.ActionReject, Reason: "allocation exceeds catchment yield"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, app.Status)
	assert.Equal(t, 3, app.CurrentStage)
	require.NotNil(t, app.RejectionReason)
	assert.Equal(t, "allocation exceeds catchment yield", *app.RejectionReason)

	require.Len(t, store.applied, 1)
	require.NotNil(t, store.applied[0].Comment)
	assert.Equal(t, "allocation exceeds catchment yield", store.applied[0].Comment.Content)
}

func TestWorkflowServiceFinalize(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, models.LastStage)}
	validUntil := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	permits := &mockPermitPreparer{data: &models.PermitData{PermitNumber: "UMSCC-2026-06-0001", ValidUntil: validUntil}}
	cache := &mockInvalidator{}
	svc := NewWorkflowService(store, permits, zap.NewNop(), WithWorkflowCache(cache))

	actor := &models.JWTClaims{UserID: "sup-1", Role: models.RolePermitSupervisor}
	app, err := svc.ApplyAction(context.Background(), "a1", actor, dto.WorkflowActionRequest{Action: models.ActionFinalize})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, app.Status)
	require.NotNil(t, app.PermitNumber)
	assert.Equal(t, "UMSCC-2026-06-0001", *app.PermitNumber)
	require.NotNil(t, app.ApprovedAt)
	require.NotNil(t, app.ValidUntil)
	assert.Equal(t, validUntil, *app.ValidUntil)
	assert.Equal(t, []string{"applications:*"}, cache.patterns)
}

func TestWorkflowServiceFinalizeBeforeFinalStage(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, 2)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	actor := &models.JWTClaims{UserID: "sup-1", Role: models.RolePermitSupervisor}
	_, err := svc.ApplyAction(context.Background(), "a1", actor, dto.WorkflowActionRequest{Action: models.ActionFinalize})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceFinalizeDerivationFailureAborts(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, models.LastStage)}
	permits := &mockPermitPreparer{err: errors.New("sequence unavailable")}
	svc := NewWorkflowService(store, permits, zap.NewNop())

	actor := &models.JWTClaims{UserID: "sup-1", Role: models.RolePermitSupervisor}
	_, err := svc.ApplyAction(context.Background(), "a1", actor, dto.WorkflowActionRequest{Action: models.ActionFinalize})
	require.Error(t, err)
	assert.Empty(t, store.applied)
}

func TestWorkflowServiceConflict(t *testing.T) {
	store := &mockWorkflowStore{
		app:      testApplication(models.StatusUnderReview, 1),
		applyErr: sql.ErrNoRows,
	}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	_, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(1), dto.WorkflowActionRequest{Action: models.ActionAdvance})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceTerminalStatesAreFrozen(t *testing.T) {
	for _, status := range []models.ApplicationStatus{models.StatusApproved, models.StatusRejected} {
		store := &mockWorkflowStore{app: testApplication(status, models.LastStage)}
		svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

		ict := &models.JWTClaims{UserID: "ict-1", Role: models.RoleICT}
		for _, action := range []models.WorkflowAction{models.ActionSubmit, models.ActionAdvance, models.ActionReject, models.ActionFinalize} {
			_, err := svc.ApplyAction(context.Background(), "a1", ict, dto.WorkflowActionRequest{Action: action, Reason: "x"})
			require.Error(t, err, "%s on %s", action, status)
		}
		assert.Empty(t, store.applied)
	}
}

func TestWorkflowServiceICTOverride(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, 2)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	ict := &models.JWTClaims{UserID: "ict-1", Role: models.RoleICT}
	app, err := svc.ApplyAction(context.Background(), "a1", ict, dto.WorkflowActionRequest{Action: models.ActionAdvance})
	require.NoError(t, err)
	assert.Equal(t, 3, app.CurrentStage)
}

func TestWorkflowServiceUnknownAction(t *testing.T) {
	store := &mockWorkflowStore{app: testApplication(models.StatusUnderReview, 1)}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	_, err := svc.ApplyAction(context.Background(), "a1", reviewerFor(1), dto.WorkflowActionRequest{Action: "escalate"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceNotFound(t *testing.T) {
	store := &mockWorkflowStore{}
	svc := NewWorkflowService(store, &mockPermitPreparer{}, zap.NewNop())

	_, err := svc.ApplyAction(context.Background(), "missing", reviewerFor(1), dto.WorkflowActionRequest{Action: models.ActionAdvance})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceAvailableActions(t *testing.T) {
	svc := NewWorkflowService(&mockWorkflowStore{}, &mockPermitPreparer{}, zap.NewNop())

	creator := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	other := &models.JWTClaims{UserID: "officer-2", Role: models.RolePermittingOfficer}

	unsubmitted := testApplication(models.StatusUnsubmitted, 0)
	assert.Equal(t, []models.WorkflowAction{models.ActionSubmit}, svc.AvailableActions(unsubmitted, creator))
	assert.Empty(t, svc.AvailableActions(unsubmitted, other))

	midReview := testApplication(models.StatusUnderReview, 2)
	assert.Equal(t, []models.WorkflowAction{models.ActionAdvance, models.ActionReject}, svc.AvailableActions(midReview, reviewerFor(2)))
	assert.Empty(t, svc.AvailableActions(midReview, reviewerFor(3)))

	final := testApplication(models.StatusUnderReview, models.LastStage)
	assert.Equal(t, []models.WorkflowAction{models.ActionFinalize, models.ActionReject}, svc.AvailableActions(final, reviewerFor(models.LastStage)))

	approved := testApplication(models.StatusApproved, models.LastStage)
	assert.Empty(t, svc.AvailableActions(approved, reviewerFor(models.LastStage)))
}
