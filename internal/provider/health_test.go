package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterFailure_DegradedBelowThreshold(t *testing.T) {
	status, failures := AfterFailure(0)
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, uint(1), failures)

	status, failures = AfterFailure(3)
	assert.Equal(t, HealthDegraded, status)
	assert.Equal(t, uint(4), failures)
}

func TestAfterFailure_DownAtThreshold(t *testing.T) {
	var failures uint
	var status HealthStatus
	for i := 0; i < FailureThreshold; i++ {
		status, failures = AfterFailure(failures)
		if i < FailureThreshold-1 {
			assert.Equal(t, HealthDegraded, status, "failure %d", i+1)
		}
	}
	assert.Equal(t, HealthDown, status)
	assert.Equal(t, uint(FailureThreshold), failures)

	status, failures = AfterFailure(failures)
	assert.Equal(t, HealthDown, status)
	assert.Equal(t, uint(FailureThreshold+1), failures)
}

func TestAfterSuccess_Resets(t *testing.T) {
	status, failures := AfterSuccess()
	assert.Equal(t, HealthHealthy, status)
	assert.Zero(t, failures)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, HealthHealthy, StatusFor(0))
	assert.Equal(t, HealthDegraded, StatusFor(1))
	assert.Equal(t, HealthDegraded, StatusFor(4))
	assert.Equal(t, HealthDown, StatusFor(5))
}

func TestFormatValid(t *testing.T) {
	assert.True(t, FormatAuto.Valid())
	assert.True(t, FormatOpenAI.Valid())
	assert.True(t, FormatAnthropic.Valid())
	assert.False(t, Format("gemini").Valid())
}
