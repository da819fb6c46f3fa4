package health_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cake-lab/arflow-go/internal/health"
	"github.com/cake-lab/arflow-go/internal/registry"
)

func TestMonitorReportsActiveSessionCount(t *testing.T) {
	reg := registry.New(registry.Config{})
	m := health.NewMonitor(reg)

	detailed, err := m.GetDetailedHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, detailed.ActiveSessions)
	assert.Equal(t, health.StatusHealthy, detailed.Status)
}

func TestMonitorIsAlwaysReadyAndAlive(t *testing.T) {
	m := health.NewMonitor(registry.New(registry.Config{}))

	ready, err := m.IsReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready.Ready)

	alive, err := m.IsAlive(context.Background())
	require.NoError(t, err)
	assert.True(t, alive.Alive)
}
