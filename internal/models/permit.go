package models

import "time"

// PermitData holds the derived attributes of an issued permit. It is
// regenerable from the owning application and never edited directly.
type PermitData struct {
	PermitNumber              string           `json:"permit_number"`
	Catchment                 string           `json:"catchment"`
	ApplicantName             string           `json:"applicant_name"`
	PhysicalAddress           string           `json:"physical_address"`
	PermitType                PermitType       `json:"permit_type"`
	WaterSource               string           `json:"water_source"`
	LandSizeHectares          float64          `json:"land_size_hectares"`
	NumberOfBoreholes         int              `json:"number_of_boreholes"`
	IntendedUse               string           `json:"intended_use"`
	TotalAllocatedAbstraction int64            `json:"total_allocated_abstraction"` // cubic metres per annum
	IssuedAt                  time.Time        `json:"issued_at"`
	ValidUntil                time.Time        `json:"valid_until"`
	BoreholeDetails           []BoreholeDetail `json:"borehole_details"`
}

// BoreholeDetail describes the allocation for a single borehole.
type BoreholeDetail struct {
	BoreholeNumber       string  `json:"borehole_number"`
	AllocatedAmount      int64   `json:"allocated_amount"` // cubic metres per annum
	GPSX                 float64 `json:"gps_x"`
	GPSY                 float64 `json:"gps_y"`
	IntendedUse          string  `json:"intended_use"`
	MaxAbstractionRate   float64 `json:"max_abstraction_rate"`
	WaterSampleFrequency string  `json:"water_sample_frequency"`
}
