package dto

import "github.com/umscc/permit-api/internal/models"

// CreateApplicationRequest is the payload for registering a new application.
type CreateApplicationRequest struct {
	ApplicantName     string            `json:"applicant_name" validate:"required"`
	PhysicalAddress   string            `json:"physical_address" validate:"required"`
	PostalAddress     string            `json:"postal_address"`
	CellularNumber    string            `json:"cellular_number" validate:"required"`
	EmailAddress      string            `json:"email_address" validate:"omitempty,email"`
	PermitType        models.PermitType `json:"permit_type" validate:"required"`
	WaterSource       string            `json:"water_source" validate:"required"`
	WaterAllocation   int64             `json:"water_allocation" validate:"required,gt=0"`
	GPSX              float64           `json:"gps_x"`
	GPSY              float64           `json:"gps_y"`
	LandSizeHectares  float64           `json:"land_size_hectares" validate:"required,gt=0"`
	NumberOfBoreholes int               `json:"number_of_boreholes" validate:"required,gte=1,lte=50"`
	IntendedUse       string            `json:"intended_use" validate:"required"`
}

// WorkflowActionRequest carries a review decision for an application.
type WorkflowActionRequest struct {
	Action  models.WorkflowAction `json:"action" validate:"required"`
	Comment string                `json:"comment"`
	Reason  string                `json:"reason"`
}

// CommentRequest appends a standalone comment to an application.
type CommentRequest struct {
	Content    string `json:"content" validate:"required"`
	IsInternal bool   `json:"is_internal"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	Status models.ApplicationStatus
	Limit  int
	Offset int
}

// AvailableActionsResponse lists the actions the actor may take.
type AvailableActionsResponse struct {
	ApplicationID string                   `json:"application_id"`
	Status        models.ApplicationStatus `json:"status"`
	CurrentStage  int                      `json:"current_stage"`
	Actions       []models.WorkflowAction  `json:"actions"`
}
