package cmd

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"io"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/advbot/internal/adventure"
	"github.com/xkilldash9x/advbot/internal/memory"
	"github.com/xkilldash9x/advbot/internal/observability"
)

// newMemoryCmd groups the offline choice memory tools.
func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspects the learned choice memory",
	}
	memoryCmd.PersistentFlags().String("memory", "", "Memory file or database path. (Overrides config/env)")
	memoryCmd.PersistentFlags().String("backend", "", "Memory backend: file, sqlite or postgres. (Overrides config/env)")
	memoryCmd.AddCommand(newMemoryShowCmd())
	memoryCmd.AddCommand(newMemoryBestCmd())
	return memoryCmd
}

func newMemoryShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Prints every remembered fingerprint and its label statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")

			store, err := memory.Open(cmd.Context(), cfg.Memory, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open choice memory: %w", err)
			}
			defer store.Close()

			return writeSnapshot(cmd.OutOrStdout(), store.Snapshot(), format)
		},
	}
	showCmd.Flags().StringP("format", "f", "yaml", "Output format ('yaml' or 'json').")
	return showCmd
}

func writeSnapshot(w io.Writer, snap memory.Snapshot, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode memory: %w", err)
		}
		return enc.Close()
	case "json":
		// Encode compactly, then indent, so an empty snapshot prints as {}.
		body, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode memory: %w", err)
		}
		var out bytes.Buffer
		if err := stdjson.Indent(&out, body, "", "  "); err != nil {
			return fmt.Errorf("failed to indent memory: %w", err)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(w)
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func newMemoryBestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "best <fingerprint> <label>...",
		Short: "Shows which of the labels memory would pick for a fingerprint",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			store, err := memory.Open(cmd.Context(), cfg.Memory, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open choice memory: %w", err)
			}
			defer store.Close()

			match, ok := store.BestMatch(args[0], args[1:])
			if !ok {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "no remembered choice")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (remembered %q, %d/%d successes, score %.1f)\n",
				match.Label, match.Remembered, match.Record.Success, match.Record.Total(), match.Score)
			return err
		},
	}
}

// newFingerprintCmd prints the fingerprint memory would file a scene under.
func newFingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <text>...",
		Short: "Prints the scenario fingerprint of a piece of adventure text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := adventure.Text{Content: strings.Join(args, " ")}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), adventure.Fingerprint(text))
			return err
		},
	}
}
