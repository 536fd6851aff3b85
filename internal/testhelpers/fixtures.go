package testhelpers

import (
	"fmt"

	"github.com/mixaill76/byok_router/internal/provider"
)

// NewTestProvider builds an active provider pointing at baseURL.
// Useful for router and handler tests backed by httptest upstreams.
func NewTestProvider(id, baseURL string, format provider.Format, priority int) provider.Provider {
	return provider.Provider{
		ID:           id,
		UserID:       "user-1",
		Name:         "provider-" + id,
		BaseURL:      baseURL,
		APIKey:       fmt.Sprintf("sk-upstream-%s-secret", id),
		Model:        "test-model",
		APIFormat:    format,
		Priority:     priority,
		IsActive:     true,
		HealthStatus: provider.HealthUnknown,
	}
}
