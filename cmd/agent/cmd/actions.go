package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/actions/aws"
	"github.com/softcane/cloud-action-agent/internal/actions/gcp"
	"github.com/softcane/cloud-action-agent/internal/actions/kube"
	"github.com/softcane/cloud-action-agent/internal/config"
)

var actionsOutputFormat string

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the actions the configured packs register",
	Long: `List every action the enabled packs register, without connecting
to any provider.

Example:
  agent actions
  agent actions --output json`,
	RunE: runListActions,
}

func init() {
	rootCmd.AddCommand(actionsCmd)

	actionsCmd.Flags().StringVar(&actionsOutputFormat, "output", "table",
		"Output format: table, json")
}

func runListActions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := catalogRegistry(cfg)
	if err != nil {
		return err
	}

	list := registry.List()
	switch actionsOutputFormat {
	case "json":
		return outputActionsJSON(list)
	default:
		return outputActionsTable(list)
	}
}

// catalogRegistry registers the enabled packs with nil clients. Handlers
// are never invoked here; only names and descriptions are read.
func catalogRegistry(cfg *config.Config) (*actions.Registry, error) {
	registry := actions.NewRegistry()

	if cfg.GCP.Enabled {
		pack := gcp.NewPack(nil, nil, slog.Default(), cfg.GCP.WaitTimeout())
		if err := pack.Register(registry); err != nil {
			return nil, fmt.Errorf("failed to register gcp actions: %w", err)
		}
	}
	if cfg.AWS.Enabled {
		pack := aws.NewPack(nil, nil, cfg.AWS.Region, slog.Default(), cfg.AWS.StopWait())
		if err := pack.Register(registry); err != nil {
			return nil, fmt.Errorf("failed to register aws actions: %w", err)
		}
	}
	if cfg.Kubernetes.Enabled {
		prom, err := kubePrometheus(cfg)
		if err != nil {
			return nil, err
		}
		pack := kube.NewPack(nil, prom, slog.Default())
		if err := pack.Register(registry); err != nil {
			return nil, fmt.Errorf("failed to register kubernetes actions: %w", err)
		}
	}

	return registry, nil
}

func outputActionsJSON(list []*actions.Action) error {
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Mutating    bool   `json:"mutating"`
	}

	entries := make([]entry, 0, len(list))
	for _, a := range list {
		entries = append(entries, entry{Name: a.Name, Description: a.Description, Mutating: a.Mutating})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(entries)
}

func outputActionsTable(list []*actions.Action) error {
	fmt.Printf("%-45s %-10s %s\n", "ACTION", "MUTATING", "DESCRIPTION")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, a := range list {
		fmt.Printf("%-45s %-10t %s\n", a.Name, a.Mutating, a.Description)
	}

	return nil
}
