package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/minara-ai/minara/internal/config"
)

func TestLimitTable_Lookup(t *testing.T) {
	table := NewLimitTable(map[string]config.TierLimits{
		"free":  {Tokens: 10000, Messages: 100},
		"basic": {Tokens: 50000, Messages: 500},
	})

	tier, limits := table.Lookup("basic")
	assert.Equal(t, "basic", tier)
	assert.Equal(t, int64(50000), limits.Tokens)
	assert.Equal(t, int64(500), limits.Messages)
}

func TestLimitTable_LookupUnknownFallsBack(t *testing.T) {
	table := NewLimitTable(map[string]config.TierLimits{
		"free": {Tokens: 10000, Messages: 100},
	})

	for _, name := range []string{"", "enterprise", "FREE"} {
		tier, limits := table.Lookup(name)
		assert.Equal(t, "free", tier)
		assert.Equal(t, int64(10000), limits.Tokens)
	}
}

func TestLimitTable_CopiesInput(t *testing.T) {
	src := map[string]config.TierLimits{
		"free": {Tokens: 10000, Messages: 100},
	}
	table := NewLimitTable(src)

	src["free"] = config.TierLimits{Tokens: 1, Messages: 1}

	_, limits := table.Lookup("free")
	assert.Equal(t, int64(10000), limits.Tokens)
}
