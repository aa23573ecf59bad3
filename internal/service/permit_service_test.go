package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/umscc/permit-api/internal/models"
	"github.com/umscc/permit-api/pkg/config"
)

type mockSequence struct {
	next  int64
	err   error
	calls int
}

func (m *mockSequence) NextPermitSequence(ctx context.Context) (int64, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	m.next++
	return m.next, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestPermitService(seq PermitSequenceSource, cfg config.PermitConfig, at time.Time) *PermitService {
	if cfg.Catchment == "" {
		cfg.Catchment = "Upper Manyame Sub-Catchment"
	}
	svc := NewPermitService(seq, cfg, zap.NewNop(), WithPermitClock(fixedClock(at)))
	svc.jitter = func() float64 { return 0 }
	return svc
}

func approvedApplication() *models.Application {
	return &models.Application{
		ID:                "a1",
		ApplicationID:     "APP-001",
		ApplicantName:     "T. Moyo",
		PhysicalAddress:   "12 Samora Machel Ave, Harare",
		PermitType:        models.PermitTypeIrrigation,
		WaterSource:       "borehole",
		WaterAllocation:   10,
		GPSX:              31.05,
		GPSY:              -17.83,
		LandSizeHectares:  4.5,
		NumberOfBoreholes: 3,
		IntendedUse:       "irrigation",
		Status:            models.StatusApproved,
	}
}

func TestPermitServicePrepare(t *testing.T) {
	issued := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{}, config.PermitConfig{DefaultValidity: 365 * 24 * time.Hour}, issued)

	data, err := svc.PreparePermitData(context.Background(), approvedApplication())
	require.NoError(t, err)

	assert.Equal(t, "UMSCC-2026-06-0001", data.PermitNumber)
	assert.Equal(t, "Upper Manyame Sub-Catchment", data.Catchment)
	assert.Equal(t, int64(10000), data.TotalAllocatedAbstraction)
	assert.Equal(t, issued, data.IssuedAt)
	assert.Equal(t, issued.Add(365*24*time.Hour), data.ValidUntil)
	require.Len(t, data.BoreholeDetails, 3)
}

func TestPermitServiceAllocationConservation(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	for boreholes := 1; boreholes <= 50; boreholes++ {
		app := approvedApplication()
		app.NumberOfBoreholes = boreholes
		app.WaterAllocation = 10

		svc := newTestPermitService(&mockSequence{}, config.PermitConfig{}, issued)
		data, err := svc.PreparePermitData(context.Background(), app)
		require.NoError(t, err, "boreholes=%d", boreholes)

		var sum int64
		for _, d := range data.BoreholeDetails {
			sum += d.AllocatedAmount
		}
		assert.Equal(t, data.TotalAllocatedAbstraction, sum, "boreholes=%d", boreholes)
	}
}

func TestPermitServiceRemainderOnLastBorehole(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{}, config.PermitConfig{}, issued)

	data, err := svc.PreparePermitData(context.Background(), approvedApplication())
	require.NoError(t, err)

	require.Len(t, data.BoreholeDetails, 3)
	assert.Equal(t, int64(3333), data.BoreholeDetails[0].AllocatedAmount)
	assert.Equal(t, int64(3333), data.BoreholeDetails[1].AllocatedAmount)
	assert.Equal(t, int64(3334), data.BoreholeDetails[2].AllocatedAmount)
	assert.InDelta(t, 3334*1.10, data.BoreholeDetails[2].MaxAbstractionRate, 0.001)
	assert.Equal(t, "BH-3", data.BoreholeDetails[2].BoreholeNumber)
	assert.Equal(t, "quarterly", data.BoreholeDetails[0].WaterSampleFrequency)
}

func TestPermitServiceIdempotentNumbering(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	seq := &mockSequence{}
	svc := newTestPermitService(seq, config.PermitConfig{}, issued)

	app := approvedApplication()
	existing := "UMSCC-2026-05-0042"
	app.PermitNumber = &existing

	data, err := svc.PreparePermitData(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, existing, data.PermitNumber)
	assert.Zero(t, seq.calls)
}

func TestPermitServiceUsesApprovalTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	approvedAt := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{}, config.PermitConfig{}, now)

	app := approvedApplication()
	app.ApprovedAt = &approvedAt

	data, err := svc.PreparePermitData(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, approvedAt, data.IssuedAt)
	assert.Equal(t, "UMSCC-2026-06-0001", data.PermitNumber)
}

func TestPermitServiceLegacyNumberFormat(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	seq := &mockSequence{next: 41}
	svc := newTestPermitService(seq, config.PermitConfig{NumberFormat: NumberFormatLegacy}, issued)

	data, err := svc.PreparePermitData(context.Background(), approvedApplication())
	require.NoError(t, err)
	assert.Equal(t, "UM260615042", data.PermitNumber)
}

func TestPermitServiceCategoricalPolicy(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		permitType models.PermitType
		requested  int64
		wantCubic  int64
	}{
		{models.PermitTypeUrban, 10, 2500 * 1000},
		{models.PermitTypeBulkWater, 42, 42 * 1000},
		{models.PermitTypeIrrigation, 10, 10000 * 1000},
		{models.PermitTypeIndustrial, 10, 10000 * 1000},
	}
	for _, tc := range cases {
		app := approvedApplication()
		app.PermitType = tc.permitType
		app.WaterAllocation = tc.requested

		svc := newTestPermitService(&mockSequence{}, config.PermitConfig{Policy: PolicyCategorical}, issued)
		data, err := svc.PreparePermitData(context.Background(), app)
		require.NoError(t, err, "%s", tc.permitType)
		assert.Equal(t, tc.wantCubic, data.TotalAllocatedAbstraction, "%s", tc.permitType)
		assert.Equal(t, issued.Add(5*365*24*time.Hour), data.ValidUntil, "%s", tc.permitType)
	}
}

func TestPermitServiceCategoricalBulkWaterCustomValidity(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	cfg := config.PermitConfig{Policy: PolicyCategorical, BulkWaterValidity: 2 * 365 * 24 * time.Hour}

	app := approvedApplication()
	app.PermitType = models.PermitTypeBulkWater
	app.WaterAllocation = 42

	svc := newTestPermitService(&mockSequence{}, cfg, issued)
	data, err := svc.PreparePermitData(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(2*365*24*time.Hour), data.ValidUntil)

	// Other permit types keep the five-year table rule.
	other := approvedApplication()
	data, err = svc.PreparePermitData(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, issued.Add(5*365*24*time.Hour), data.ValidUntil)
}

func TestPermitServiceRejectsIncompleteApplication(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{}, config.PermitConfig{}, issued)

	app := approvedApplication()
	app.ApplicantName = "  "
	_, err := svc.PreparePermitData(context.Background(), app)
	require.Error(t, err)

	app = approvedApplication()
	app.NumberOfBoreholes = 0
	_, err = svc.PreparePermitData(context.Background(), app)
	require.Error(t, err)
}

func TestPermitServiceSequenceFailure(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{err: errors.New("connection refused")}, config.PermitConfig{}, issued)

	_, err := svc.PreparePermitData(context.Background(), approvedApplication())
	require.Error(t, err)
}

func TestPermitServiceValidatePermitData(t *testing.T) {
	issued := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	svc := newTestPermitService(&mockSequence{}, config.PermitConfig{}, issued)

	data, err := svc.PreparePermitData(context.Background(), approvedApplication())
	require.NoError(t, err)
	assert.True(t, svc.ValidatePermitData(data))

	incomplete := *data
	incomplete.BoreholeDetails = incomplete.BoreholeDetails[:1]
	assert.False(t, svc.ValidatePermitData(&incomplete))

	blank := *data
	blank.PermitNumber = ""
	assert.False(t, svc.ValidatePermitData(&blank))

	assert.False(t, svc.ValidatePermitData(nil))
}
