package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/dto"
	"github.com/umscc/permit-api/internal/models"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

type mockApplicationStore struct {
	items     map[string]*models.Application
	comments  map[string][]models.Comment
	documents map[string][]models.DocumentRef
	activity  map[string][]models.ActivityLog
	listCalls int
	deleted   []string
}

func (m *mockApplicationStore) Create(ctx context.Context, app *models.Application) error {
	if m.items == nil {
		m.items = make(map[string]*models.Application)
	}
	app.ID = "generated"
	app.ApplicationID = "APP-001"
	app.Version = 1
	app.CreatedAt = time.Now()
	cp := *app
	m.items[app.ID] = &cp
	return nil
}

func (m *mockApplicationStore) GetByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := m.items[id]; ok {
		cp := *app
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationStore) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	m.listCalls++
	out := make([]models.Application, 0, len(m.items))
	for _, app := range m.items {
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.CreatedBy != "" && app.CreatedBy != filter.CreatedBy {
			continue
		}
		out = append(out, *app)
	}
	return out, nil
}

func (m *mockApplicationStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if m.comments == nil {
		m.comments = make(map[string][]models.Comment)
	}
	comment.ID = "c1"
	m.comments[comment.ApplicationID] = append(m.comments[comment.ApplicationID], *comment)
	return nil
}

func (m *mockApplicationStore) ListComments(ctx context.Context, applicationID string) ([]models.Comment, error) {
	return m.comments[applicationID], nil
}

func (m *mockApplicationStore) ListActivity(ctx context.Context, applicationID string) ([]models.ActivityLog, error) {
	return m.activity[applicationID], nil
}

func (m *mockApplicationStore) ListDocuments(ctx context.Context, applicationID string) ([]models.DocumentRef, error) {
	return m.documents[applicationID], nil
}

func (m *mockApplicationStore) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
	deletes []string
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	m.entries = nil
	return nil
}

func validCreateRequest() dto.CreateApplicationRequest {
	return dto.CreateApplicationRequest{
		ApplicantName:     "T. Moyo",
		PhysicalAddress:   "12 Samora Machel Ave, Harare",
		CellularNumber:    "+263771234567",
		PermitType:        models.PermitTypeIrrigation,
		WaterSource:       "borehole",
		WaterAllocation:   10,
		LandSizeHectares:  4.5,
		NumberOfBoreholes: 2,
		IntendedUse:       "irrigation",
	}
}

func TestApplicationServiceCreate(t *testing.T) {
	store := &mockApplicationStore{}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	officer := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	app, err := svc.Create(context.Background(), validCreateRequest(), officer)
	require.NoError(t, err)

	assert.Equal(t, models.StatusUnsubmitted, app.Status)
	assert.Equal(t, "officer-1", app.CreatedBy)
	assert.Equal(t, 1, app.Version)
	assert.Equal(t, "APP-001", app.ApplicationID)
}

func TestApplicationServiceCreateForbiddenRole(t *testing.T) {
	svc := NewApplicationService(&mockApplicationStore{}, nil, validator.New(), zap.NewNop())

	reviewer := &models.JWTClaims{UserID: "rev-1", Role: models.RoleChairperson}
	_, err := svc.Create(context.Background(), validCreateRequest(), reviewer)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceCreateInvalidPayload(t *testing.T) {
	svc := NewApplicationService(&mockApplicationStore{}, nil, validator.New(), zap.NewNop())

	req := validCreateRequest()
	req.NumberOfBoreholes = 0
	officer := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	_, err := svc.Create(context.Background(), req, officer)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApplicationServiceGetComposesChildren(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusUnderReview, CreatedBy: "officer-1"},
		},
		comments: map[string][]models.Comment{
			"a1": {{ID: "c1", ApplicationID: "a1", Content: "note"}},
		},
		documents: map[string][]models.DocumentRef{
			"a1": {{ID: "d1", ApplicationID: "a1", Filename: "proof.pdf"}},
		},
	}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	reviewer := &models.JWTClaims{UserID: "rev-1", Role: models.RoleChairperson}
	app, err := svc.Get(context.Background(), "a1", reviewer)
	require.NoError(t, err)
	require.Len(t, app.Comments, 1)
	require.Len(t, app.Documents, 1)
}

func TestApplicationServiceGetUnsubmittedHiddenFromOthers(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusUnsubmitted, CreatedBy: "officer-1"},
		},
	}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	reviewer := &models.JWTClaims{UserID: "rev-1", Role: models.RoleChairperson}
	_, err := svc.Get(context.Background(), "a1", reviewer)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	creator := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	_, err = svc.Get(context.Background(), "a1", creator)
	require.NoError(t, err)

	ict := &models.JWTClaims{UserID: "ict-1", Role: models.RoleICT}
	_, err = svc.Get(context.Background(), "a1", ict)
	require.NoError(t, err)
}

func TestApplicationServiceListUsesCache(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusSubmitted, CreatedBy: "officer-1"},
		},
	}
	cacheRepo := &memoryCacheRepo{}
	cache := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	svc := NewApplicationService(store, cache, validator.New(), zap.NewNop())

	reviewer := &models.JWTClaims{UserID: "rev-1", Role: models.RoleChairperson}
	query := dto.ApplicationQuery{Status: models.StatusSubmitted, Limit: 50}

	first, err := svc.List(context.Background(), query, reviewer)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.List(context.Background(), query, reviewer)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, store.listCalls)
}

func TestApplicationServiceListOfficerSeesOwnUnsubmitted(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusUnsubmitted, CreatedBy: "officer-1"},
			"a2": {ID: "a2", Status: models.StatusUnsubmitted, CreatedBy: "officer-2"},
		},
	}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	officer := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	apps, err := svc.List(context.Background(), dto.ApplicationQuery{Status: models.StatusUnsubmitted}, officer)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "a1", apps[0].ID)
}

func TestApplicationServiceAddComment(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusUnderReview, CreatedBy: "officer-1"},
		},
	}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	reviewer := &models.JWTClaims{UserID: "rev-1", Role: models.RoleChairperson}
	comment, err := svc.AddComment(context.Background(), "a1", dto.CommentRequest{Content: "  looks complete  "}, reviewer)
	require.NoError(t, err)
	assert.Equal(t, "looks complete", comment.Content)
	assert.Equal(t, models.RoleChairperson, comment.UserType)
}

func TestApplicationServiceDeleteICTOnly(t *testing.T) {
	store := &mockApplicationStore{
		items: map[string]*models.Application{
			"a1": {ID: "a1", Status: models.StatusRejected},
		},
	}
	svc := NewApplicationService(store, nil, validator.New(), zap.NewNop())

	officer := &models.JWTClaims{UserID: "officer-1", Role: models.RolePermittingOfficer}
	err := svc.Delete(context.Background(), "a1", officer)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	ict := &models.JWTClaims{UserID: "ict-1", Role: models.RoleICT}
	require.NoError(t, svc.Delete(context.Background(), "a1", ict))
	assert.Equal(t, []string{"a1"}, store.deleted)

	// Idempotent: deleting again is not an error.
	require.NoError(t, svc.Delete(context.Background(), "a1", ict))
}
