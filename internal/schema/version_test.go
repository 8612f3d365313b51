package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concordium/ccdscan-indexer/internal/schema"
)

func TestFromInt64_KnownAndUnknown(t *testing.T) {
	v, err := schema.FromInt64(int64(schema.PassiveDelegation))
	require.NoError(t, err)
	assert.Equal(t, schema.PassiveDelegation, v)

	_, err = schema.FromInt64(9999)
	assert.Error(t, err)
}

func TestVersion_NoneAreDestructive(t *testing.T) {
	for v := schema.Empty; v <= schema.LatestVersion; v++ {
		assert.False(t, v.IsDestructive(), "version %s unexpectedly marked destructive", v)
	}
}

func TestVersion_PartialVersionsAreExactlyTheBackfillSteps(t *testing.T) {
	assert.True(t, schema.PaydayPoolRewardsPartial.IsPartial())
	assert.True(t, schema.PaydayPoolStakePartial.IsPartial())
	assert.False(t, schema.PaydayPoolRewards.IsPartial())
	assert.False(t, schema.LatestVersion.IsPartial())
}

func TestAPISupportedVersion_IsLatest(t *testing.T) {
	assert.Equal(t, schema.LatestVersion, schema.APISupportedVersion)
}
