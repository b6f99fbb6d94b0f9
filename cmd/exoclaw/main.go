// Command exoclaw is the CLI entry point for the gateway: start the
// transport, inspect loaded plugins, and check runtime status, mirroring
// the gateway/plugin/status subcommand set of the system this was
// distilled from.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exoclaw/gateway/internal/config"
	"github.com/exoclaw/gateway/internal/gateway"
	"github.com/exoclaw/gateway/internal/memory"
	"github.com/exoclaw/gateway/internal/plugin"
	"github.com/exoclaw/gateway/internal/provider"
	"github.com/exoclaw/gateway/internal/routing"
	"github.com/exoclaw/gateway/internal/secrets"
	"github.com/exoclaw/gateway/internal/session"
	"github.com/exoclaw/gateway/internal/usage"
)

var (
	version = "dev"

	flagPort int
	flagBind string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "exoclaw",
		Short:        "A secure, sandboxed AI agent gateway",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(buildGatewayCmd(), buildPluginCmd(), buildStatusCmd())
	return root
}

func buildGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway()
		},
	}
	cmd.Flags().IntVarP(&flagPort, "port", "p", 0, "bind port (overrides config file)")
	cmd.Flags().StringVarP(&flagBind, "bind", "b", "", "bind address (overrides config file)")
	return cmd
}

func runGateway() error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagPort != 0 {
		cfg.Gateway.Port = flagPort
	}
	if flagBind != "" {
		cfg.Gateway.Bind = flagBind
	}

	deps, err := buildDependencies(cfg)
	if err != nil {
		return err
	}

	srv, err := gateway.New(cfg, deps, slog.Default())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("config loaded",
		"agents", len(cfg.Agents),
		"plugins", len(cfg.Plugins),
		"bindings", len(cfg.Bindings),
	)
	return srv.ListenAndServe(ctx)
}

// buildDependencies wires the shared-owner components a Server needs from
// the parsed config: the router, session store/locker, memory engine,
// budget meter (with its SQLite audit mirror when budgets.audit_db_path is
// set), plugin host, and both provider adapters (anthropic and openai),
// whichever providers the agents reference.
func buildDependencies(cfg *config.Config) (gateway.Dependencies, error) {
	bindings := make([]routing.Binding, 0, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		bindings = append(bindings, routing.Binding{
			AgentID: b.AgentID, Channel: b.Channel, Account: b.Account,
			Peer: b.Peer, Guild: b.Guild, Team: b.Team,
		})
	}
	defaultAgent := ""
	if len(cfg.Agents) > 0 {
		defaultAgent = cfg.Agents[0].ID
	}

	host := plugin.NewHost()
	for _, p := range cfg.Plugins {
		useFirecracker := p.Isolation == "firecracker"
		if err := host.Register(context.Background(), p.Name, p.Path, p.Capabilities, 30*time.Second, useFirecracker); err != nil {
			return gateway.Dependencies{}, fmt.Errorf("load plugin %s: %w", p.Name, err)
		}
	}

	providers := map[string]provider.Provider{
		"anthropic": provider.NewAnthropicProvider(),
		"openai":    provider.NewOpenAIProvider(),
	}

	meter := usage.NewMeter(usage.Limits{
		Session: cfg.Budgets.Session,
		Daily:   cfg.Budgets.Daily,
		Monthly: cfg.Budgets.Monthly,
	})
	if cfg.Budgets.AuditDBPath != "" {
		sink, err := usage.OpenSQLiteAuditSink(cfg.Budgets.AuditDBPath)
		if err != nil {
			return gateway.Dependencies{}, fmt.Errorf("open audit db: %w", err)
		}
		meter.SetAuditSink(sink)
	}

	return gateway.Dependencies{
		Router:    routing.New(bindings, defaultAgent),
		Store:     session.NewStore(),
		Locker:    session.NewLocker(0),
		Memory:    memory.NewEngine(cfg.Memory.EpisodicWindow, cfg.Memory.SemanticEnabled),
		Meter:     meter,
		Host:      host,
		Providers: providers,
	}, nil
}

func buildPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Manage plugins",
	}
	cmd.AddCommand(buildPluginListCmd(), buildPluginLoadCmd())
	return cmd
}

func buildPluginListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.ConfigPath())
			if err != nil {
				return err
			}
			if len(cfg.Plugins) == 0 {
				fmt.Println("No plugins configured.")
				return nil
			}
			for _, p := range cfg.Plugins {
				fmt.Printf("%s\t%s\n", p.Name, p.Path)
			}
			return nil
		},
	}
}

func buildPluginLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>",
		Short: "Probe and load a plugin by path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := plugin.NewHost()
			name := args[0]
			if err := host.Register(cmd.Context(), name, args[0], nil, 30*time.Second, false); err != nil {
				return fmt.Errorf("load plugin: %w", err)
			}
			fmt.Printf("loaded %s\n", name)
			return nil
		},
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("exoclaw %s\n", version)
			cfg, err := config.Load(config.ConfigPath())
			if err != nil {
				fmt.Println("config: not loaded:", err)
				return nil
			}
			fmt.Printf("agents: %d\n", len(cfg.Agents))
			fmt.Printf("plugins: %d\n", len(cfg.Plugins))
			fmt.Printf("bindings: %d\n", len(cfg.Bindings))
			for _, a := range cfg.Agents {
				if _, ok := secrets.LoadAPIKey(a.Provider); !ok && a.APIKey == "" {
					fmt.Printf("warning: agent %s has no %s API key configured\n", a.ID, a.Provider)
				}
			}
			return nil
		},
	}
}
