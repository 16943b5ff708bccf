package main

import (
	"testing"

	"github.com/livestatement/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRun_FailsWhenDatabaseUnreachable(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Name: "ledger-worker", Env: "test"},
		Database: config.DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    1,
			User:    "ledger",
			DBName:  "ledger",
			SSLMode: "disable",
		},
		Log:   config.LogConfig{Level: "error"},
		Event: config.EventConfig{Transport: config.TransportOutbox},
	}

	err := run(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}
