package apptwin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/fixture"
)

func TestCountFeatures_Fixture(t *testing.T) {
	got := CountFeatures(fixture.Content())
	assert.Equal(t, 2, got[FeatureEmail])
	assert.Equal(t, 2, got[FeatureURL])
	assert.Equal(t, 2, got[FeatureCreditCard])
	assert.GreaterOrEqual(t, got[FeaturePhone], 2)
}

func TestCountFeatures_Normalization(t *testing.T) {
	got := CountFeatures("Mail Bob@Example.com or bob@example.com. Call 555-12-34.")
	assert.Equal(t, 1, got[FeatureEmail], "case and trailing dot normalized")
	assert.NotContains(t, got, FeaturePhone, "too few digits")
}

func TestCountFeatures_Empty(t *testing.T) {
	assert.Empty(t, CountFeatures("nothing to see here"))
}
