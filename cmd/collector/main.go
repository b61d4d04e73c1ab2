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

	"github.com/go-tangra/go-tangra-cpuinfo/cmd/collector/assets"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/config"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/server"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/store"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/winsvc"
)

var (
	version    = "dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cpuinfo-collector",
	Short: "CPU Info Collector - HTTP daemon that stores CPU identification snapshots",
	Long: `CPU Info Collector receives CPU identification snapshots over HTTP
from cpuinfo agents and stores them in a local SQLite database.

Run without a subcommand to start the daemon (equivalent to 'serve').`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP collector daemon",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cpuinfo-collector %s (commit: %s, built: %s)\n", version, commitHash, buildDate)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge snapshots older than the specified number of days",
	RunE:  runPurge,
}

var purgeDays int

const serviceName = "TangraCPUInfoCollector"

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage Windows service installation",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install as a Windows service",
	RunE:  runServiceInstall,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the Windows service",
	RunE:  runServiceUninstall,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/collector.yaml)")
	rootCmd.PersistentFlags().String("http-listen", "", "HTTP listen address (default :9560)")
	rootCmd.PersistentFlags().String("database", "", "SQLite database path (default cpuinfo.db)")
	rootCmd.PersistentFlags().String("client-secret", "", "secret for cpuinfo agents (empty = no auth)")
	rootCmd.PersistentFlags().String("api-secret", "", "secret for REST API clients (empty = no auth)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	purgeCmd.Flags().IntVar(&purgeDays, "days", 90, "purge snapshots older than this many days")

	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(serviceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, "collector")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flag overrides.
	if v, _ := cmd.Flags().GetString("http-listen"); v != "" {
		cfg.HTTPListen = v
	}
	if v, _ := cmd.Flags().GetString("database"); v != "" {
		cfg.DatabasePath = v
	}
	if v, _ := cmd.Flags().GetString("client-secret"); v != "" {
		cfg.ClientSecret = v
	}
	if v, _ := cmd.Flags().GetString("api-secret"); v != "" {
		cfg.ApiSecret = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		if _, err := config.ParseLogLevel(v); err != nil {
			return nil, err
		}
		cfg.LogLevel = v
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Windows service mode.
	if winsvc.IsWindowsService() {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		winsvc.SetupEventLog(serviceName, level)
		return winsvc.RunService(serviceName, func(ctx context.Context) error {
			return server.Run(ctx, cfg, assets.OpenApiData)
		})
	}

	cfg.SetupLogging(os.Stderr)

	// Interactive mode: shut down on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, cfg, assets.OpenApiData)
}

func runServiceInstall(_ *cobra.Command, _ []string) error {
	exePath, err := winsvc.ExePath()
	if err != nil {
		return err
	}

	if err := winsvc.Install(winsvc.Service{
		Name:        serviceName,
		DisplayName: "Tangra CPU Info Collector",
		Description: "Receives CPU identification snapshots from agents over HTTP and stores them locally.",
		Command:     "serve",
		ConfigFile:  cfgFile,
	}, exePath); err != nil {
		return err
	}

	slog.Info("Service installed", "service", serviceName)
	return nil
}

func runServiceUninstall(_ *cobra.Command, _ []string) error {
	if err := winsvc.Uninstall(serviceName); err != nil {
		return err
	}
	slog.Info("Service uninstalled", "service", serviceName)
	return nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	n, err := db.Purge(context.Background(), time.Duration(purgeDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}

	fmt.Printf("Purged %d snapshots older than %d days\n", n, purgeDays)
	return nil
}
