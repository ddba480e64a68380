package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msaeedsaeedi/serialsoak/internal/app"
	"github.com/msaeedsaeedi/serialsoak/internal/config"
	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/infra"
	"github.com/msaeedsaeedi/serialsoak/internal/store"
	"github.com/msaeedsaeedi/serialsoak/internal/ui"
)

const version = "0.2.0"

const (
	exitFailure         = 1
	exitConnectionError = 2
)

type options struct {
	configFile  string
	profile     string
	port        string
	baud        int
	cycles      int
	delay       float64
	commands    []string
	id          string
	project     string
	successCode int64
	timeoutCode int64
	logDir      string
	json        bool
	raw         bool
	tui         bool
	verbosity   string
	db          string
	mqttBroker  string
	mqttUser    string
	mqttPass    string
}

func buildRunConfig(cmd *cobra.Command, args []string, opts *options) (*domain.RunConfig, *config.File, error) {
	file := &config.File{}
	if opts.configFile != "" {
		f, err := config.Load(opts.configFile)
		if err != nil {
			return nil, nil, err
		}
		file = f
	}

	flags := cmd.Flags()
	var o config.Overrides
	if flags.Changed("profile") {
		o.Profile = &opts.profile
	}
	if flags.Changed("port") {
		o.Port = &opts.port
	}
	if flags.Changed("baud") {
		o.Baud = &opts.baud
	}
	if flags.Changed("cycles") {
		o.Cycles = &opts.cycles
	}
	if flags.Changed("delay") {
		o.Delay = &opts.delay
	}
	if flags.Changed("id") {
		o.ID = &opts.id
	}
	if flags.Changed("project") {
		o.Project = &opts.project
	}
	if flags.Changed("success-code") {
		o.SuccessCode = &opts.successCode
	}
	if flags.Changed("timeout-code") {
		o.TimeoutCode = &opts.timeoutCode
	}
	if flags.Changed("log-dir") {
		o.LogDir = &opts.logDir
	}
	o.Commands = append(append([]string(nil), opts.commands...), args...)

	cfg, err := config.Build(file, o)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case opts.json:
		cfg.Format = domain.FormatJSON
	case opts.raw:
		cfg.Format = domain.FormatRaw
	case opts.tui:
		cfg.Format = domain.FormatTUI
	default:
		cfg.Format = domain.FormatJSON
	}
	cfg.Verbosity = domain.VerbosityLevel(opts.verbosity)

	return cfg, file, nil
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	cfg, file, err := buildRunConfig(cmd, args, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var orchOpts []app.Option

	dbPath := firstNonEmpty(opts.db, file.DB)
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer st.Close()
		orchOpts = append(orchOpts, app.WithHistory(st))
	}

	mqttCfg := infra.MQTTConfig{
		Broker:   opts.mqttBroker,
		ClientID: "serialsoak-" + cfg.InstanceID,
		Username: opts.mqttUser,
		Password: opts.mqttPass,
	}
	if file.MQTT != nil {
		mqttCfg.Broker = firstNonEmpty(mqttCfg.Broker, file.MQTT.Broker)
		mqttCfg.Username = firstNonEmpty(mqttCfg.Username, file.MQTT.Username)
		mqttCfg.Password = firstNonEmpty(mqttCfg.Password, file.MQTT.Password)
	}
	if mqttCfg.Broker != "" {
		pub, err := infra.NewMQTTPublisher(mqttCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: progress will not be published: %v\n", err)
		} else {
			defer pub.Close()
			orchOpts = append(orchOpts, app.WithHandlers(ui.NewMQTTFormatter(cfg, pub)))
		}
	}

	orchestrator := app.NewOrchestrator(orchOpts...)
	if err := orchestrator.Execute(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\nExecution cancelled")
			return nil
		}
		return err
	}

	return nil
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [-- <command>...]",
		Short: "Run a soak test against a serial device",
		Long: "Send the command sequence to the device once per cycle and validate every feedback code.\n" +
			"Commands may be given with --commands or after --; otherwise the profile defaults are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "YAML run file")
	f.StringVarP(&opts.profile, "profile", "p", domain.QBA.Name, "Device profile (qba|qswipe)")
	f.StringVar(&opts.port, "port", "", "Serial port (default from profile)")
	f.IntVar(&opts.baud, "baud", 115200, "Baud rate")
	f.IntVarP(&opts.cycles, "cycles", "n", 5, "Number of cycles")
	f.Float64Var(&opts.delay, "delay", 3, "Delay between commands in seconds")
	f.StringArrayVar(&opts.commands, "commands", nil, "Command to send, repeatable")
	f.StringVar(&opts.id, "id", "", "Instance ID used for logs and history (default <profile>_<random>)")
	f.StringVar(&opts.project, "project", "", "Project name prefixed to the log file")
	f.Int64Var(&opts.successCode, "success-code", 0, "Override the profile success code")
	f.Int64Var(&opts.timeoutCode, "timeout-code", 0, "Override the profile timeout code")
	f.StringVar(&opts.logDir, "log-dir", "logs", "Root directory for per-day log files")
	f.BoolVar(&opts.json, "json", false, "Output progress as JSON lines (default)")
	f.BoolVar(&opts.raw, "raw", false, "Output progress as plain text")
	f.BoolVar(&opts.tui, "tui", false, "Output in TUI format")
	f.StringVarP(&opts.verbosity, "verbosity", "v", "normal", "Verbosity level (silent|normal|verbose)")
	f.StringVar(&opts.db, "db", "", "SQLite database recording run history")
	f.StringVar(&opts.mqttBroker, "mqtt-broker", "", "MQTT broker receiving progress, e.g. tcp://localhost:1883")
	f.StringVar(&opts.mqttUser, "mqtt-username", "", "MQTT username")
	f.StringVar(&opts.mqttPass, "mqtt-password", "", "MQTT password")
	cmd.MarkFlagsMutuallyExclusive("json", "raw", "tui")

	return cmd
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "serialsoak",
		Short:         "Soak-test serial devices",
		Long:          "serialsoak - drive QBA and QSwipe devices through repeated command cycles and validate their feedback",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.Version = version

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newPortsCmd())
	cmd.AddCommand(newProfilesCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func exitCode(err error) int {
	var connErr *domain.ConnectionError
	if errors.As(err, &connErr) {
		return exitConnectionError
	}
	return exitFailure
}

func main() {
	opts := &options{}
	rootCmd := newRootCmd(opts)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
