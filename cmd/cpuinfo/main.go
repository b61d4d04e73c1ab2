package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/config"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/daemon"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/sender"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/smbios"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/winsvc"
)

var (
	version    = "dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

var (
	cfgFile    string
	outputFile string
	snapshot   bool
	processors bool
)

const serviceName = "TangraCPUInfoAgent"

var rootCmd = &cobra.Command{
	Use:   "cpuinfo",
	Short: "CPU Info - identifies the host processor from SMBIOS and the OS",
	Long: `CPU Info identifies the processor of the local host. Topology and the
processor name come from the operating system; the SMBIOS processor record
refines the frequency range when the firmware table is readable.

Run without a subcommand to print the detection result (equivalent to 'detect').`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE:              runDetect,
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the local CPU and print it as JSON",
	RunE:  runDetect,
}

var smbiosCmd = &cobra.Command{
	Use:   "smbios",
	Short: "List the SMBIOS structures of the firmware table",
	RunE:  runSMBIOS,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Collect a snapshot and submit it to the collector once",
	RunE:  runSend,
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Submit snapshots and serve refresh commands from the collector",
	RunE:  runAgent,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cpuinfo %s (commit: %s, built: %s)\n", version, commitHash, buildDate)
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage Windows service installation",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the agent as a Windows service",
	RunE:  runServiceInstall,
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the Windows service",
	RunE:  runServiceUninstall,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/cpuinfo.yaml)")
	rootCmd.PersistentFlags().String("collector", "", "collector URL (default http://127.0.0.1:9560)")
	rootCmd.PersistentFlags().String("client-secret", "", "secret presented to the collector (empty = no auth)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("temperature", false, "read CPU temperature sensors")

	for _, c := range []*cobra.Command{rootCmd, detectCmd} {
		c.Flags().StringVarP(&outputFile, "output", "o", "", "write JSON output to file instead of stdout")
		c.Flags().BoolVar(&snapshot, "snapshot", false, "print a full snapshot including system identity")
	}
	smbiosCmd.Flags().BoolVar(&processors, "processors", false, "decode every processor structure as JSON")
	agentCmd.Flags().Duration("interval", 0, "also submit a snapshot at this interval (0 = only on refresh)")

	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)

	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(smbiosCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serviceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies CLI flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, "cpuinfo")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if v, _ := cmd.Flags().GetString("collector"); v != "" {
		cfg.CollectorURL = v
	}
	if v, _ := cmd.Flags().GetString("client-secret"); v != "" {
		cfg.ClientSecret = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Temperature, _ = cmd.Flags().GetBool("temperature")
	}
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		cfg.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.SetupLogging(os.Stderr)
	return nil
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var out any
	if snapshot {
		snap, err := collector.Collect(collector.Options{Temperature: cfg.Temperature})
		if err != nil {
			if snap == nil || snap.CPU == nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
		out = snap
	} else {
		res, err := cpu.NewDetector().Detect(cpu.Options{Temperature: cfg.Temperature})
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			slog.Debug("detection warning", "warning", w)
		}
		out = res
	}

	return writeJSON(out)
}

func writeJSON(v any) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "result written to %s\n", outputFile)
	}
	return nil
}

func runSMBIOS(_ *cobra.Command, _ []string) error {
	t, err := smbios.Default().Table()
	if err != nil {
		return err
	}

	if !processors {
		return smbios.Dump(os.Stdout, t)
	}

	procs, err := t.Processors()
	infos := make([]smbios.ProcessorInfo, 0, len(procs))
	for _, p := range procs {
		infos = append(infos, p.Info())
	}
	if werr := writeJSON(infos); werr != nil {
		return werr
	}
	return err
}

func runSend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	snap, err := collector.Collect(collector.Options{Temperature: cfg.Temperature})
	if err != nil {
		slog.Warn("Collect returned partial snapshot", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, err := sender.Send(ctx, cfg.CollectorURL, cfg.ClientSecret, snap)
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot %s stored with id %d\n", snap.ID, id)
	return nil
}

func runAgent(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("hostname: %w", err)
	}

	dcfg := daemon.Config{
		CollectorURL: cfg.CollectorURL,
		ClientSecret: cfg.ClientSecret,
		ClientID:     hostname,
		Version:      version,
		Interval:     cfg.Interval,
		PollWait:     cfg.PollWait,
		Temperature:  cfg.Temperature,
	}

	// Windows service mode.
	if winsvc.IsWindowsService() {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		winsvc.SetupEventLog(serviceName, level)
		return winsvc.RunService(serviceName, func(ctx context.Context) error {
			return daemon.Run(ctx, dcfg)
		})
	}

	// Interactive mode: shut down on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = daemon.Run(ctx, dcfg)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runServiceInstall(_ *cobra.Command, _ []string) error {
	exePath, err := winsvc.ExePath()
	if err != nil {
		return err
	}

	if err := winsvc.Install(winsvc.Service{
		Name:        serviceName,
		DisplayName: "Tangra CPU Info Agent",
		Description: "Submits CPU identification snapshots to a Tangra CPU info collector.",
		Command:     "agent",
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
