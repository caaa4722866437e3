// internal/llmclient/helper_test.go
package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/internal/config"
)

// setupTestLogger creates a zap logger backed by an observer so tests can
// assert on what was logged.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// testGatewayConfig returns a gateway configuration pointed at nothing in
// particular. Tests override BaseURL with their httptest server.
func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Provider:       config.ProviderOpenAI,
		BaseURL:        "https://api.openai.com/v1",
		APIKey:         "test-api-key",
		Environment:    "browser",
		RequestTimeout: 5 * time.Second,
	}
}
