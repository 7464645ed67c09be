package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/softcane/cloud-action-agent/internal/actions"
	"github.com/softcane/cloud-action-agent/internal/actions/aws"
	"github.com/softcane/cloud-action-agent/internal/audit"
	"github.com/softcane/cloud-action-agent/internal/actions/gcp"
	"github.com/softcane/cloud-action-agent/internal/actions/kube"
	"github.com/softcane/cloud-action-agent/internal/config"
	"github.com/softcane/cloud-action-agent/internal/dispatch"
	"github.com/softcane/cloud-action-agent/internal/metrics"
	"github.com/softcane/cloud-action-agent/internal/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the action agent server",
	Long: `Serve starts the agent in server mode.

The agent will:
1. Register the action packs enabled in configuration
2. Serve the action API and metrics over HTTP
3. Consume action requests from NATS when configured

Use --dry-run=false to let mutating actions execute.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting cloud action agent",
		"dry_run", IsDryRun(),
		"version", "0.1.0",
	)

	// 1. Load Configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 2. Build the action registry from the enabled packs
	registry, cleanup, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	// 3. Compile the policy deny rules
	engine, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	// 4. Wire the dispatcher, with the audit log when configured
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

	// 5. Serve HTTP and the optional NATS consumer until shutdown
	server, err := dispatch.NewServer(dispatch.ServerConfig{
		Address:         cfg.Server.ListenAddress,
		Dispatcher:      dispatcher,
		Logger:          slog.Default(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(groupCtx)
	})

	if cfg.NATS.Enabled {
		consumer, err := dispatch.NewConsumer(dispatch.ConsumerConfig{
			URL:        cfg.NATS.URL,
			Subject:    cfg.NATS.Subject,
			Queue:      cfg.NATS.Queue,
			Dispatcher: dispatcher,
			Logger:     slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("failed to create nats consumer: %w", err)
		}
		group.Go(func() error {
			return consumer.Run(groupCtx)
		})
	}

	slog.Info("agent ready",
		"actions", len(registry.List()),
		"address", cfg.Server.ListenAddress,
		"nats", cfg.NATS.Enabled,
	)

	if err := group.Wait(); err != nil {
		return fmt.Errorf("agent failure: %w", err)
	}
	return nil
}

// buildRegistry registers the enabled action packs and returns a cleanup
// closing the provider clients.
func buildRegistry(ctx context.Context, cfg *config.Config) (*actions.Registry, func(), error) {
	registry := actions.NewRegistry()

	var closers []func() error
	cleanup := func() {
		for _, close := range closers {
			if err := close(); err != nil {
				slog.Warn("failed to close client", "error", err)
			}
		}
	}

	if cfg.GCP.Enabled {
		var opts []option.ClientOption
		if cfg.GCP.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
		}
		if cfg.GCP.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.GCP.Endpoint))
		}
		clients, err := gcp.NewClients(ctx, opts...)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create gcp clients: %w", err)
		}
		closers = append(closers, clients.Close)

		pack := gcp.NewPack(clients.Firewalls(), clients.Instances(), slog.Default(), cfg.GCP.WaitTimeout())
		if err := pack.Register(registry); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to register gcp actions: %w", err)
		}
		slog.Info("gcp actions registered")
	}

	if cfg.AWS.Enabled {
		clients, err := aws.NewClients(ctx, cfg.AWS.Region)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create aws clients: %w", err)
		}

		pack := aws.NewPack(clients.EC2, clients.Pricing, cfg.AWS.Region, slog.Default(), cfg.AWS.StopWait())
		if err := pack.Register(registry); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to register aws actions: %w", err)
		}
		slog.Info("aws actions registered", "region", cfg.AWS.Region)
	}

	if cfg.Kubernetes.Enabled {
		client, err := kube.NewClientset(cfg.Kubernetes.Kubeconfig)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
		}

		prom, err := kubePrometheus(cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}

		pack := kube.NewPack(client, prom, slog.Default())
		if err := pack.Register(registry); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to register kubernetes actions: %w", err)
		}
		slog.Info("kubernetes actions registered", "prometheus", cfg.Kubernetes.PrometheusURL != "")
	}

	return registry, cleanup, nil
}

// kubePrometheus builds the utilization query client when a Prometheus URL
// is configured.
func kubePrometheus(cfg *config.Config) (*metrics.Client, error) {
	if cfg.Kubernetes.PrometheusURL == "" {
		return nil, nil
	}
	prom, err := metrics.NewClient(metrics.ClientConfig{
		PrometheusURL: cfg.Kubernetes.PrometheusURL,
		Logger:        slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return prom, nil
}

// buildAuditor opens the signed invocation log when audit is enabled. The
// returned closer is always safe to call.
func buildAuditor(cfg *config.Config) (*audit.Auditor, func(), error) {
	if !cfg.Audit.Enabled {
		return nil, func() {}, nil
	}

	sink, err := os.OpenFile(cfg.Audit.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open audit log %s: %w", cfg.Audit.Path, err)
	}

	auditor, err := audit.NewAuditor(sink, audit.Config{SecretKey: cfg.Audit.SecretKey}, slog.Default())
	if err != nil {
		sink.Close()
		return nil, func() {}, fmt.Errorf("failed to create auditor: %w", err)
	}

	closeAudit := func() {
		if err := sink.Close(); err != nil {
			slog.Warn("failed to close audit log", "error", err)
		}
	}
	slog.Info("audit log enabled", "path", cfg.Audit.Path)
	return auditor, closeAudit, nil
}

// buildPolicy compiles the deny rules from configuration. No rules means no
// engine; the dispatcher treats that as allow-all.
func buildPolicy(cfg *config.Config) (*policy.Engine, error) {
	if len(cfg.Policy.DenyRules) == 0 {
		return nil, nil
	}

	specs := make([]policy.RuleSpec, 0, len(cfg.Policy.DenyRules))
	for _, rule := range cfg.Policy.DenyRules {
		specs = append(specs, policy.RuleSpec{Name: rule.Name, Expression: rule.Expression})
	}

	engine, err := policy.New(specs, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to compile policy rules: %w", err)
	}
	slog.Info("policy deny rules compiled", "rules", engine.Len())
	return engine, nil
}
