package phuslulog_test

import (
	"bytes"
	"testing"

	"github.com/goliatone/go-credentials/adapters/phuslulog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesFormattedMessages(t *testing.T) {
	var buf bytes.Buffer
	logger := phuslulog.New(&buf, "debug", false)

	logger.Info("issued %s for %s", "login_otp", "a@example.com")

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, "issued login_otp for a@example.com")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := phuslulog.New(&buf, "warn", false)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestProviderTagsLoggerName(t *testing.T) {
	var buf bytes.Buffer
	provider := phuslulog.NewProvider(phuslulog.New(&buf, "info", false))

	provider.GetLogger("broker").Error("boom")

	out := buf.String()
	assert.Contains(t, out, `"logger":"broker"`)
	assert.Contains(t, out, "boom")
}
