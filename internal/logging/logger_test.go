package logging_test

import (
	"context"
	"testing"

	"github.com/cake-lab/arflow-go/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()
	logger := logging.NewLogger("test-component")
	require.NotNil(t, logger)
	require.NotNil(t, logger.Logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestGlobalLogger(t *testing.T) {
	logger1 := logging.GlobalLogger()
	logger2 := logging.GlobalLogger()
	assert.Same(t, logger1, logger2)
}

func TestSetupLogging(t *testing.T) {
	cfg := logging.CreateTestLoggingConfig("debug", "json", true, false, "")
	err := logging.SetupLogging(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logging.GlobalLogger().GetLevel())
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := logging.WithCorrelationID(context.Background(), "corr-123")
	assert.Equal(t, "corr-123", logging.GetCorrelationIDFromContext(ctx))
	assert.Empty(t, logging.GetCorrelationIDFromContext(context.Background()))
}

func TestWithCorrelationIDLogger(t *testing.T) {
	t.Parallel()
	base := logging.NewLogger("sessionstream")
	withID := base.WithCorrelationID("corr-456")
	assert.NotSame(t, base, withID)
}

func TestGenerateCorrelationIDUnique(t *testing.T) {
	t.Parallel()
	a := logging.GenerateCorrelationID()
	b := logging.GenerateCorrelationID()
	assert.NotEqual(t, a, b)
}
