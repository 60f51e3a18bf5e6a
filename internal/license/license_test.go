package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusEntitled(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, true},
		{StatusTrial, true},
		{StatusPastDue, false},
		{StatusCancelled, false},
		{StatusSuspended, false},
		{Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Entitled())
		})
	}
	assert.False(t, Status("bogus").Valid())
	assert.True(t, StatusPastDue.Valid())
}

func TestParsePlanTier(t *testing.T) {
	assert.Equal(t, PlanPro, ParsePlanTier(" PRO "))
	assert.Equal(t, PlanEnterprise, ParsePlanTier("enterprise"))
	assert.Equal(t, PlanFree, ParsePlanTier("platinum"))
	assert.Equal(t, PlanFree, ParsePlanTier(""))
}

func TestEntitlementsFor(t *testing.T) {
	free := EntitlementsFor(PlanFree)
	assert.False(t, free.ManagedAI)
	assert.True(t, free.HasFeature("offline_mode"))
	assert.False(t, free.HasFeature("byo_keys"))

	pro := EntitlementsFor(PlanPro)
	assert.True(t, pro.ManagedAI)
	assert.True(t, pro.HasFeature("byo_keys"))
	assert.Greater(t, pro.MaxRequestsPerDay, free.MaxRequestsPerDay)

	assert.Equal(t, 0, EntitlementsFor(PlanEnterprise).MaxRequestsPerDay)
	assert.Equal(t, free, EntitlementsFor(PlanTier("unknown")))
}

func TestDefaultMaxDevices(t *testing.T) {
	assert.Equal(t, 1, DefaultMaxDevices(PlanFree))
	assert.Equal(t, 3, DefaultMaxDevices(PlanPro))
	assert.Equal(t, 50, DefaultMaxDevices(PlanEnterprise))
}

func TestDeviceCeiling(t *testing.T) {
	assert.Equal(t, 7, DeviceCeiling(PlanPro, 7))
	assert.Equal(t, 3, DeviceCeiling(PlanPro, 0))
	assert.Equal(t, 1, DeviceCeiling(PlanFree, -2))
}
