package catalog

import (
	"context"
	"testing"

	"github.com/benningd54/Anlab/internal/order/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFindByCodes(t *testing.T) {
	m := NewMemory(
		pricing.Entry{Code: "SOIL-01", Analysis: "Soil pH", Category: "Soil", InternalCostMinor: 1000, InternalSetupMinor: 500},
		pricing.Entry{Code: "WAT-01", Analysis: "Nitrate", Category: "Water", InternalCostMinor: 1200, InternalSetupMinor: 300},
	)

	entries, missing, err := m.FindByCodes(context.Background(), []string{"SOIL-01", "NOPE", "SOIL-01", "ALSO-NOPE"})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "SOIL-01", entries[0].Code)
	assert.Equal(t, []string{"NOPE", "ALSO-NOPE"}, missing)
}

func TestMemoryListActiveSortedByCode(t *testing.T) {
	m := NewMemory(
		pricing.Entry{Code: "B"},
		pricing.Entry{Code: "A"},
	)
	m.Upsert(pricing.Entry{Code: "C"})

	entries, err := m.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "A", entries[0].Code)
	assert.Equal(t, "C", entries[2].Code)
}
