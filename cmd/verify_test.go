package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starreach/starreach-cli/internal/config"
	"github.com/starreach/starreach-cli/internal/extract"
)

func TestVerifyFixtureExtraction(t *testing.T) {
	got := extract.Extract(verifyFixture)
	for field, want := range verifyWant {
		assert.Equal(t, want, got[field], string(field))
	}
}

func TestVerifyLocalRender(t *testing.T) {
	cfg = &config.Config{}
	cfg.Render.TimeoutSecs = 5
	t.Cleanup(func() { cfg = nil })

	require.NoError(t, verifyLocalRender(context.Background()))
}
