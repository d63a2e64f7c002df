package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-gate/internal/gate/config"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DEFAULT_APP_CONFIG
	cfg.ProxyAddr = "127.0.0.1:0"
	cfg.RuleDB = filepath.Join(t.TempDir(), "rules.db")
	return &cfg
}

func TestBuildApplication(t *testing.T) {
	app, err := buildApplication(testConfig(t))
	require.NoError(t, err)

	assert.NotNil(t, app.bus)
	assert.NotNil(t, app.rules)
	assert.NotNil(t, app.registry)
	assert.NotNil(t, app.presence)
	assert.NotNil(t, app.proxy)

	require.NoError(t, app.rules.Close())
	app.bus.Close()
}

func TestBuildApplication_UnwritableRuleDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.RuleDB = filepath.Join(t.TempDir(), "missing", "nested", "rules.db")

	// An unopenable database degrades to in-memory rules, not a startup failure.
	app, err := buildApplication(cfg)
	require.NoError(t, err)
	require.NoError(t, app.rules.Close())
	app.bus.Close()
}

func TestBuildApplication_EmptyNeighborCommand(t *testing.T) {
	cfg := testConfig(t)
	cfg.NeighborCommand = nil

	_, err := buildApplication(cfg)
	assert.Error(t, err)
}
