package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinArb/internal/domain/models"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
	return &models.SuccessPayload{}, nil
}

func entry(id string, caps ...models.Capability) Registered {
	return Registered{
		Source:  models.Source{ID: id, Capabilities: caps, Trust: 0.5},
		Fetcher: stubFetcher{},
	}
}

func TestNewRegistryRejectsDuplicateID(t *testing.T) {
	_, err := NewRegistry([]Registered{
		entry("alpha", models.CapEquityPrice),
		entry("alpha", models.CapFxRate),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewRegistryRejectsEmptyID(t *testing.T) {
	_, err := NewRegistry([]Registered{entry("", models.CapEquityPrice)})

	assert.Error(t, err)
}

func TestNewRegistryRejectsNilFetcher(t *testing.T) {
	_, err := NewRegistry([]Registered{{
		Source: models.Source{ID: "alpha", Capabilities: []models.Capability{models.CapEquityPrice}},
	}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher")
}

func TestCapableSortedByID(t *testing.T) {
	r, err := NewRegistry([]Registered{
		entry("gamma", models.CapEquityPrice),
		entry("alpha", models.CapEquityPrice, models.CapFxRate),
		entry("beta", models.CapEquityPrice),
	})
	require.NoError(t, err)

	capable := r.Capable(models.CapEquityPrice)
	require.Len(t, capable, 3)
	assert.Equal(t, "alpha", capable[0].ID)
	assert.Equal(t, "beta", capable[1].ID)
	assert.Equal(t, "gamma", capable[2].ID)

	assert.Len(t, r.Capable(models.CapFxRate), 1)
	assert.Empty(t, r.Capable(models.CapCryptoPrice))
}

func TestLookups(t *testing.T) {
	r, err := NewRegistry([]Registered{entry("alpha", models.CapEquityPrice)})
	require.NoError(t, err)

	f, ok := r.FetcherFor("alpha")
	assert.True(t, ok)
	assert.NotNil(t, f)

	_, ok = r.FetcherFor("missing")
	assert.False(t, ok)

	src, ok := r.SourceByID("alpha")
	assert.True(t, ok)
	assert.Equal(t, "alpha", src.ID)

	_, ok = r.SourceByID("missing")
	assert.False(t, ok)

	assert.Len(t, r.All(), 1)
}
