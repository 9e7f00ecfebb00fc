package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposurehub/exposure-search/internal/config"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/utils"
)

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := config.SourcesConfig{
		Internal: config.InternalSourceConfig{Enabled: true, DisplayName: "Internal", Priority: 0, MaxResults: 50},
		External: []config.ExternalSourceConfig{{
			Name: "breachapi", DisplayName: "Breach API", Enabled: false, BaseURL: "http://localhost:1",
			Priority: 1, MaxResults: 20, Timeout: time.Second,
		}},
	}
	reg, err := Build(cfg, Dependencies{Engine: &stubEngine{}, Logger: utils.DiscardLogger()})
	require.NoError(t, err)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "internal", all[0].Name())
	assert.Equal(t, "breachapi", all[1].Name())

	ext, ok := reg.Get("breachapi")
	require.True(t, ok)
	info := Info(context.Background(), ext)
	assert.False(t, info.Enabled)
	assert.False(t, info.Healthy)
	assert.Equal(t, "Breach API", info.DisplayName)
	assert.Equal(t, []models.SearchType{
		models.SearchTypeEmail, models.SearchTypeUsername, models.SearchTypeDomain,
		models.SearchTypePassword, models.SearchTypeIP, models.SearchTypePhone,
	}, info.SupportedTypes)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := NewInternalSource(Descriptor{Name: "dup"}, &stubEngine{}, nil)
	b := NewInternalSource(Descriptor{Name: "dup"}, &stubEngine{}, nil)
	_, err := NewRegistry(a, b)
	assert.ErrorContains(t, err, "duplicate")
}

func TestRegistryOrdersByPriority(t *testing.T) {
	low := NewInternalSource(Descriptor{Name: "low", Priority: 5}, &stubEngine{}, nil)
	high := NewInternalSource(Descriptor{Name: "high", Priority: 0}, &stubEngine{}, nil)
	reg, err := NewRegistry(low, high)
	require.NoError(t, err)
	assert.Equal(t, "high", reg.All()[0].Name())
}
