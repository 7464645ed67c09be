package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/softcane/cloud-action-agent/internal/dispatch"
)

var (
	runInput     string
	runInputFile string
)

var runCmd = &cobra.Command{
	Use:   "run <action>",
	Short: "Invoke a single action and print the result",
	Long: `Run invokes one registered action and prints the result as JSON.

The request is read from --input, --input-file, or stdin when piped.
Mutating actions require --dry-run=false.

Example:
  agent run get_instances --input '{"project_id":"my-project","zone":"us-central1-a"}'
  agent run aws_get_ondemand_price --input '{"instance_type":"m5.large"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runAction,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runInput, "input", "", "Request JSON")
	runCmd.Flags().StringVar(&runInputFile, "input-file", "", "Path to a file holding the request JSON")
}

func runAction(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	name := args[0]

	input, err := readRunInput()
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, cleanup, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	auditor, closeAudit, err := buildAuditor(cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	dispatcher, err := dispatch.New(dispatch.Config{
		Registry: registry,
		Policy:   engine,
		Logger:   slog.Default(),
		Auditor:  auditor,
		DryRun:   IsDryRun(),
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	result, err := dispatcher.Dispatch(ctx, name, input)
	if err != nil {
		return fmt.Errorf("action %s failed: %w", name, err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// readRunInput resolves the request body from the flags or piped stdin.
func readRunInput() (json.RawMessage, error) {
	if runInput != "" && runInputFile != "" {
		return nil, fmt.Errorf("set only one of --input or --input-file")
	}
	if runInput != "" {
		return json.RawMessage(runInput), nil
	}
	if runInputFile != "" {
		data, err := os.ReadFile(runInputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		return data, nil
	}

	stat, err := os.Stdin.Stat()
	if err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	return nil, nil
}
