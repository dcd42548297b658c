// File: internal/agent/main_test.go
package agent

import (
	"os"
	"testing"

	"github.com/xkilldash9x/advbot/internal/config"
	"github.com/xkilldash9x/advbot/internal/observability"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"
)

// TestMain initializes the global logger for the agent package and checks that no
// consumer goroutine outlives its test.
func TestMain(m *testing.M) {
	logConfig := config.NewDefaultConfig().Logger
	logConfig.Level = "debug"
	logConfig.ServiceName = "test-suite"
	logConfig.Format = "console"
	logConfig.LogFile = ""

	observability.Initialize(logConfig, zapcore.Lock(os.Stdout))

	// VerifyTestMain exits the process itself.
	goleak.VerifyTestMain(m)
}
