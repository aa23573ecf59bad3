package models

import "time"

// ApplicationStatus captures the review workflow states.
type ApplicationStatus string

const (
	StatusUnsubmitted ApplicationStatus = "unsubmitted"
	StatusSubmitted   ApplicationStatus = "submitted"
	StatusUnderReview ApplicationStatus = "under_review"
	StatusApproved    ApplicationStatus = "approved"
	StatusRejected    ApplicationStatus = "rejected"
)

// Terminal reports whether the review workflow is finished for the status.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// WorkflowAction enumerates the operations the review workflow accepts.
type WorkflowAction string

const (
	ActionSubmit   WorkflowAction = "submit"
	ActionAdvance  WorkflowAction = "advance"
	ActionReject   WorkflowAction = "reject"
	ActionFinalize WorkflowAction = "finalize"
)

// FirstStage and LastStage bound the review pipeline.
const (
	FirstStage = 1
	LastStage  = 4
)

// PermitType categorises the requested abstraction.
type PermitType string

const (
	PermitTypeUrban       PermitType = "urban"
	PermitTypeBulkWater   PermitType = "bulk_water"
	PermitTypeIrrigation  PermitType = "irrigation"
	PermitTypeInstitution PermitType = "institution"
	PermitTypeIndustrial  PermitType = "industrial"
)

// Application is the central permit application entity.
type Application struct {
	ID            string `db:"id" json:"id"`
	ApplicationID string `db:"application_id" json:"application_id"`

	// Immutable at creation.
	ApplicantName      string     `db:"applicant_name" json:"applicant_name"`
	PhysicalAddress    string     `db:"physical_address" json:"physical_address"`
	PostalAddress      string     `db:"postal_address" json:"postal_address,omitempty"`
	CellularNumber     string     `db:"cellular_number" json:"cellular_number,omitempty"`
	EmailAddress       string     `db:"email_address" json:"email_address,omitempty"`
	PermitType         PermitType `db:"permit_type" json:"permit_type"`
	WaterSource        string     `db:"water_source" json:"water_source"`
	WaterAllocation    int64      `db:"water_allocation" json:"water_allocation"` // megalitres
	GPSX               float64    `db:"gps_x" json:"gps_x"`
	GPSY               float64    `db:"gps_y" json:"gps_y"`
	LandSizeHectares   float64    `db:"land_size_hectares" json:"land_size_hectares"`
	NumberOfBoreholes  int        `db:"number_of_boreholes" json:"number_of_boreholes"`
	IntendedUse        string     `db:"intended_use" json:"intended_use"`

	// Mutable workflow fields.
	Status       ApplicationStatus `db:"status" json:"status"`
	CurrentStage int               `db:"current_stage" json:"current_stage"`
	CreatedBy    string            `db:"created_by" json:"created_by"`
	Version      int               `db:"version" json:"version"`

	// Terminal-derived fields, populated on approval.
	PermitNumber    *string    `db:"permit_number" json:"permit_number,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ValidUntil      *time.Time `db:"valid_until" json:"valid_until,omitempty"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`

	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	Comments  []Comment     `db:"-" json:"comments,omitempty"`
	Documents []DocumentRef `db:"-" json:"documents,omitempty"`
}

// Comment is an append-only review note owned by an application.
type Comment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	UserType      UserRole  `db:"user_type" json:"user_type"`
	Content       string    `db:"content" json:"content"`
	IsInternal    bool      `db:"is_internal" json:"is_internal"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ActivityLog records one workflow transition for the audit trail.
type ActivityLog struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Action        string    `db:"action" json:"action"`
	Detail        []byte    `db:"detail" json:"detail,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DocumentRef points at an uploaded attachment; the binary lives in storage.
type DocumentRef struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	DocumentType  string    `db:"document_type" json:"document_type"`
	Filename      string    `db:"filename" json:"filename"`
	StoragePath   string    `db:"storage_path" json:"-"`
	SizeBytes     int64     `db:"size_bytes" json:"size_bytes"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	UploadedBy    string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	Status    ApplicationStatus
	CreatedBy string
	Limit     int
	Offset    int
}
