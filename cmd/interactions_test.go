package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-agency/leadflow/internal/model"
)

func resetInteractionFlags(t *testing.T) {
	t.Helper()
	typ, since, until, limit := interactionsType, interactionsSince, interactionsUntil, interactionsLimit
	t.Cleanup(func() {
		interactionsType, interactionsSince, interactionsUntil, interactionsLimit = typ, since, until, limit
	})
}

func TestBuildInteractionFilterRange(t *testing.T) {
	resetInteractionFlags(t)
	interactionsType = "email_generation"
	interactionsSince = "2026-08-01T00:00:00Z"
	interactionsUntil = "2026-08-31T23:59:59Z"
	interactionsLimit = 25

	filter, err := buildInteractionFilter()
	require.NoError(t, err)
	assert.Equal(t, model.InteractionEmailGeneration, filter.Type)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), filter.From)
	assert.Equal(t, time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC), filter.To)
	assert.Equal(t, 25, filter.Limit)
}

func TestBuildInteractionFilterDefaults(t *testing.T) {
	resetInteractionFlags(t)
	interactionsType = ""
	interactionsSince = ""
	interactionsUntil = ""
	interactionsLimit = 50

	filter, err := buildInteractionFilter()
	require.NoError(t, err)
	assert.Empty(t, filter.Type)
	assert.True(t, filter.From.IsZero())
	assert.True(t, filter.To.IsZero())
}

func TestBuildInteractionFilterBadTimestamps(t *testing.T) {
	resetInteractionFlags(t)

	interactionsSince = "yesterday"
	_, err := buildInteractionFilter()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--since")

	interactionsSince = ""
	interactionsUntil = "08/31/2026"
	_, err = buildInteractionFilter()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--until")
}
