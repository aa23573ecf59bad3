package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/pkg/config"
	appErrors "github.com/umscc/permit-api/pkg/errors"
)

const (
	// PolicyStandard issues the officer-requested allocation with a one-year
	// validity. PolicyCategorical is the legacy rule set: fixed allocations
	// per permit type and a five-year validity. The two are never merged.
	PolicyStandard    = "standard"
	PolicyCategorical = "categorical"

	// NumberFormatStandard is UMSCC-YYYY-MM-NNNN. NumberFormatLegacy is the
	// old issuing system's UM<yymmdd><NNN>.
	NumberFormatStandard = "standard"
	NumberFormatLegacy   = "legacy"

	categoricalValidity = 5 * 365 * 24 * time.Hour

	megalitreToCubicMetre = 1000
	abstractionBuffer     = 1.10
	gpsJitterDegrees      = 0.001

	defaultSampleFrequency = "quarterly"
)

// Categorical allocation table in megalitres, keyed by permit type.
// Bulk water carries the officer-entered allocation through unchanged.
var categoricalAllocationML = map[models.PermitType]int64{
	models.PermitTypeUrban: 2500,
}

const categoricalDefaultML = 10000

// PermitSequenceSource supplies monotonically increasing permit sequence
// numbers, backed by the persistence layer.
type PermitSequenceSource interface {
	NextPermitSequence(ctx context.Context) (int64, error)
}

// PermitService derives issued permit attributes from approved applications.
type PermitService struct {
	seq    PermitSequenceSource
	cfg    config.PermitConfig
	logger *zap.Logger
	now    func() time.Time
	jitter func() float64
}

// PermitServiceOption configures the service.
type PermitServiceOption func(*PermitService)

// WithPermitClock overrides the time source (used in tests).
func WithPermitClock(now func() time.Time) PermitServiceOption {
	return func(s *PermitService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPermitService constructs the service with defaults.
func NewPermitService(seq PermitSequenceSource, cfg config.PermitConfig, logger *zap.Logger, opts ...PermitServiceOption) *PermitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NumberFormat == "" {
		cfg.NumberFormat = NumberFormatStandard
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyStandard
	}
	if cfg.DefaultValidity <= 0 {
		cfg.DefaultValidity = 365 * 24 * time.Hour
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	svc := &PermitService{
		seq:    seq,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		jitter: func() float64 { return (rng.Float64()*2 - 1) * gpsJitterDegrees },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// PreparePermitData derives the printable permit fields for an application.
// Numbering is idempotent: an application that already carries a permit
// number keeps it on re-derivation.
func (s *PermitService) PreparePermitData(ctx context.Context, app *models.Application) (*models.PermitData, error) {
	if app == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "application is required")
	}
	if strings.TrimSpace(app.ApplicantName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "applicant name is required")
	}
	if app.NumberOfBoreholes < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one borehole is required")
	}

	issuedAt := s.now()
	if app.ApprovedAt != nil {
		issuedAt = *app.ApprovedAt
	}

	number, err := s.permitNumber(ctx, app, issuedAt)
	if err != nil {
		return nil, err
	}

	totalML := s.allocationML(app)
	totalCubic := totalML * megalitreToCubicMetre

	data := &models.PermitData{
		PermitNumber:              number,
		Catchment:                 s.cfg.Catchment,
		ApplicantName:             app.ApplicantName,
		PhysicalAddress:           app.PhysicalAddress,
		PermitType:                app.PermitType,
		WaterSource:               app.WaterSource,
		LandSizeHectares:          app.LandSizeHectares,
		NumberOfBoreholes:         app.NumberOfBoreholes,
		IntendedUse:               app.IntendedUse,
		TotalAllocatedAbstraction: totalCubic,
		IssuedAt:                  issuedAt,
		ValidUntil:                issuedAt.Add(s.validity(app.PermitType)),
		BoreholeDetails:           s.boreholeDetails(app, totalCubic),
	}

	if !s.ValidatePermitData(data) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "derived permit data is incomplete")
	}
	return data, nil
}

// ValidatePermitData reports whether every printable field is present.
func (s *PermitService) ValidatePermitData(data *models.PermitData) bool {
	if data == nil {
		return false
	}
	switch {
	case strings.TrimSpace(data.PermitNumber) == "",
		strings.TrimSpace(data.ApplicantName) == "",
		strings.TrimSpace(data.PhysicalAddress) == "",
		strings.TrimSpace(data.IntendedUse) == "",
		data.LandSizeHectares <= 0,
		data.NumberOfBoreholes < 1,
		data.TotalAllocatedAbstraction < 0,
		data.ValidUntil.IsZero():
		return false
	}
	return len(data.BoreholeDetails) == data.NumberOfBoreholes
}

func (s *PermitService) permitNumber(ctx context.Context, app *models.Application, issuedAt time.Time) (string, error) {
	if app.PermitNumber != nil && strings.TrimSpace(*app.PermitNumber) != "" {
		return *app.PermitNumber, nil
	}
	if s.seq == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "permit sequence source not configured")
	}
	seq, err := s.seq.NextPermitSequence(ctx)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to draw permit sequence")
	}
	if s.cfg.NumberFormat == NumberFormatLegacy {
		return fmt.Sprintf("UM%s%03d", issuedAt.Format("060102"), seq%1000), nil
	}
	return fmt.Sprintf("UMSCC-%04d-%02d-%04d", issuedAt.Year(), int(issuedAt.Month()), seq%10000), nil
}

func (s *PermitService) allocationML(app *models.Application) int64 {
	if s.cfg.Policy != PolicyCategorical {
		return app.WaterAllocation
	}
	if app.PermitType == models.PermitTypeBulkWater {
		// Bulk water keeps the officer-entered allocation.
		return app.WaterAllocation
	}
	if ml, ok := categoricalAllocationML[app.PermitType]; ok {
		return ml
	}
	return categoricalDefaultML
}

func (s *PermitService) validity(permitType models.PermitType) time.Duration {
	if s.cfg.Policy != PolicyCategorical {
		return s.cfg.DefaultValidity
	}
	if permitType == models.PermitTypeBulkWater && s.cfg.BulkWaterValidity > 0 {
		return s.cfg.BulkWaterValidity
	}
	return categoricalValidity
}

// boreholeDetails splits the total allocation evenly, assigning the integer
// remainder to the last borehole so the sum always reconciles exactly.
func (s *PermitService) boreholeDetails(app *models.Application, totalCubic int64) []models.BoreholeDetail {
	n := app.NumberOfBoreholes
	per := totalCubic / int64(n)
	details := make([]models.BoreholeDetail, 0, n)
	for i := 1; i <= n; i++ {
		amount := per
		if i == n {
			amount = totalCubic - per*int64(n-1)
		}
		details = append(details, models.BoreholeDetail{
			BoreholeNumber:       fmt.Sprintf("BH-%d", i),
			AllocatedAmount:      amount,
			GPSX:                 app.GPSX + s.jitter(),
			GPSY:                 app.GPSY + s.jitter(),
			IntendedUse:          app.IntendedUse,
			MaxAbstractionRate:   float64(amount) * abstractionBuffer,
			WaterSampleFrequency: defaultSampleFrequency,
		})
	}
	return details
}
