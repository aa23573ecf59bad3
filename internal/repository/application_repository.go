package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/umscc/permit-api/internal/models"
)

const applicationColumns = `id, application_id, applicant_name, physical_address, postal_address,
       cellular_number, email_address, permit_type, water_source, water_allocation,
       gps_x, gps_y, land_size_hectares, number_of_boreholes, intended_use,
       status, current_stage, created_by, version,
       permit_number, approved_at, valid_until, rejection_reason,
       submitted_at, created_at, updated_at`

// ApplicationRepository persists permit applications and their children.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a new application row. The human-facing application number
// is drawn from a database sequence so identifiers stay gapless-ordered
// across replicas.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.ApplicationID == "" {
		var seq int64
		if err := r.db.GetContext(ctx, &seq, `SELECT nextval('application_number_seq')`); err != nil {
			return fmt.Errorf("next application number: %w", err)
		}
		app.ApplicationID = fmt.Sprintf("APP-%03d", seq)
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.StatusUnsubmitted
	}
	if app.Version == 0 {
		app.Version = 1
	}
	const query = `INSERT INTO applications
	(id, application_id, applicant_name, physical_address, postal_address,
	 cellular_number, email_address, permit_type, water_source, water_allocation,
	 gps_x, gps_y, land_size_hectares, number_of_boreholes, intended_use,
	 status, current_stage, created_by, version, submitted_at, created_at, updated_at)
	VALUES (:id, :application_id, :applicant_name, :physical_address, :postal_address,
	 :cellular_number, :email_address, :permit_type, :water_source, :water_allocation,
	 :gps_x, :gps_y, :land_size_hectares, :number_of_boreholes, :intended_use,
	 :status, :current_stage, :created_by, :version, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID fetches an application by internal identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications matching the filter ordered by submission time.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + applicationColumns + ` FROM applications`)

	conditions := make([]string, 0, 2)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at ASC NULLS LAST, created_at ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// TransitionParams groups the columns a workflow transition may touch.
// Nil pointers leave the column untouched.
type TransitionParams struct {
	ID              string
	ExpectedVersion int
	Status          models.ApplicationStatus
	CurrentStage    int
	SubmittedAt     *time.Time
	RejectionReason *string
	PermitNumber    *string
	ApprovedAt      *time.Time
	ValidUntil      *time.Time
	Log             models.ActivityLog
	Comment         *models.Comment
}

// ApplyTransition performs the guarded state write, the audit-log append and
// the optional comment insert in one transaction. A version mismatch surfaces
// as sql.ErrNoRows so callers can report a conflict.
func (r *ApplicationRepository) ApplyTransition(ctx context.Context, params TransitionParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	setParts := []string{
		"status = :status",
		"current_stage = :current_stage",
		"version = version + 1",
		"updated_at = :updated_at",
	}
	if params.SubmittedAt != nil {
		setParts = append(setParts, "submitted_at = :submitted_at")
	}
	if params.RejectionReason != nil {
		setParts = append(setParts, "rejection_reason = :rejection_reason")
	}
	if params.PermitNumber != nil {
		setParts = append(setParts, "permit_number = :permit_number")
	}
	if params.ApprovedAt != nil {
		setParts = append(setParts, "approved_at = :approved_at")
	}
	if params.ValidUntil != nil {
		setParts = append(setParts, "valid_until = :valid_until")
	}
	query := fmt.Sprintf("UPDATE applications SET %s WHERE id = :id AND version = :expected_version",
		strings.Join(setParts, ", "))
	result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"id":               params.ID,
		"expected_version": params.ExpectedVersion,
		"status":           params.Status,
		"current_stage":    params.CurrentStage,
		"updated_at":       time.Now().UTC(),
		"submitted_at":     params.SubmittedAt,
		"rejection_reason": params.RejectionReason,
		"permit_number":    params.PermitNumber,
		"approved_at":      params.ApprovedAt,
		"valid_until":      params.ValidUntil,
	})
	if err != nil {
		return fmt.Errorf("update application state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	log := params.Log
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	log.ApplicationID = params.ID
	const logQuery = `INSERT INTO activity_logs (id, application_id, user_id, action, detail, created_at)
	VALUES (:id, :application_id, :user_id, :action, :detail, :created_at)`
	if _, err := tx.NamedExecContext(ctx, logQuery, log); err != nil {
		return fmt.Errorf("append activity log: %w", err)
	}

	if params.Comment != nil {
		comment := *params.Comment
		if comment.ID == "" {
			comment.ID = uuid.NewString()
		}
		if comment.CreatedAt.IsZero() {
			comment.CreatedAt = time.Now().UTC()
		}
		comment.ApplicationID = params.ID
		const commentQuery = `INSERT INTO comments (id, application_id, user_id, user_type, content, is_internal, created_at)
	VALUES (:id, :application_id, :user_id, :user_type, :content, :is_internal, :created_at)`
		if _, err := tx.NamedExecContext(ctx, commentQuery, comment); err != nil {
			return fmt.Errorf("append transition comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// CreateComment appends a standalone comment outside of a transition.
func (r *ApplicationRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comments (id, application_id, user_id, user_type, content, is_internal, created_at)
	VALUES (:id, :application_id, :user_id, :user_type, :content, :is_internal, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

// ListComments returns an application's comments oldest first.
func (r *ApplicationRepository) ListComments(ctx context.Context, applicationID string) ([]models.Comment, error) {
	const query = `SELECT id, application_id, user_id, user_type, content, is_internal, created_at
	FROM comments WHERE application_id = $1 ORDER BY created_at ASC`
	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, applicationID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// ListActivity returns the audit trail oldest first.
func (r *ApplicationRepository) ListActivity(ctx context.Context, applicationID string) ([]models.ActivityLog, error) {
	const query = `SELECT id, application_id, user_id, action, detail, created_at
	FROM activity_logs WHERE application_id = $1 ORDER BY created_at ASC`
	var logs []models.ActivityLog
	if err := r.db.SelectContext(ctx, &logs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return logs, nil
}

// AddDocument stores an attachment reference.
func (r *ApplicationRepository) AddDocument(ctx context.Context, doc *models.DocumentRef) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO documents (id, application_id, document_type, filename, storage_path, size_bytes, mime_type, uploaded_by, uploaded_at)
	VALUES (:id, :application_id, :document_type, :filename, :storage_path, :size_bytes, :mime_type, :uploaded_by, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// GetDocument fetches one attachment reference.
func (r *ApplicationRepository) GetDocument(ctx context.Context, id string) (*models.DocumentRef, error) {
	const query = `SELECT id, application_id, document_type, filename, storage_path, size_bytes, mime_type, uploaded_by, uploaded_at
	FROM documents WHERE id = $1`
	var doc models.DocumentRef
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns an application's attachments oldest first.
func (r *ApplicationRepository) ListDocuments(ctx context.Context, applicationID string) ([]models.DocumentRef, error) {
	const query = `SELECT id, application_id, document_type, filename, storage_path, size_bytes, mime_type, uploaded_by, uploaded_at
	FROM documents WHERE application_id = $1 ORDER BY uploaded_at ASC`
	var docs []models.DocumentRef
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes an application and its children. The operation is
// idempotent: deleting an unknown id is not an error.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, query := range []string{
		`DELETE FROM comments WHERE application_id = $1`,
		`DELETE FROM documents WHERE application_id = $1`,
		`DELETE FROM activity_logs WHERE application_id = $1`,
		`DELETE FROM applications WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete application: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// NextPermitSequence draws the next value from the permit number sequence.
func (r *ApplicationRepository) NextPermitSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT nextval('permit_number_seq')`); err != nil {
		return 0, fmt.Errorf("next permit sequence: %w", err)
	}
	return seq, nil
}
