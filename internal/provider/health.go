package provider

// FailureThreshold is the number of consecutive failures after which a
// provider is considered down.
const FailureThreshold = 5

// AfterFailure returns the health state that follows one more failure on top
// of the given consecutive failure count.
func AfterFailure(failures uint) (HealthStatus, uint) {
	failures++
	if failures >= FailureThreshold {
		return HealthDown, failures
	}
	return HealthDegraded, failures
}

// AfterSuccess returns the health state that follows a successful attempt.
func AfterSuccess() (HealthStatus, uint) {
	return HealthHealthy, 0
}

// StatusFor classifies a raw failure counter.
func StatusFor(failures uint) HealthStatus {
	switch {
	case failures == 0:
		return HealthHealthy
	case failures >= FailureThreshold:
		return HealthDown
	default:
		return HealthDegraded
	}
}
