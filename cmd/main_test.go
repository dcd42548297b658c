// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// resetForTest isolates a test from the working directory and the package flag state.
func resetForTest(t *testing.T) string {
	t.Helper()

	// 1. Run from an empty directory so no advbot.yaml or .env is discovered.
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// 2. Reset package-level flag variables.
	cfgFile = ""
	envFile = ".env"

	// 3. Keep log output and secrets away from the real environment.
	t.Setenv("ADVBOT_LOGGER_LOG_FILE", filepath.Join(dir, "advbot-test.log"))
	t.Setenv("ADVBOT_LOGGER_LEVEL", "error")
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("ADVBOT_DISCORD_TOKEN", "")
	return dir
}

// executeCommand runs a fresh command tree with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// findCommand locates a subcommand by name.
func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
