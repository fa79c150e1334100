package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/emuctl/pkg/client"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with every subcommand attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createSequenceCommand("start", apiFlags),
		createSequenceCommand("stop", apiFlags),
		createStatusCommand(apiFlags),
		createInfoCommand(apiFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "emuctl",
		Short: "Emulator control service",
		Long: `emuctl starts, stops and reports on groups of emulator processes
configured per server installation, driven over a small HTTP API.

Examples:
  emuctl serve emulators.json         # run the control service
  emuctl start s1                     # start server s1 via the running service
  emuctl stop all                     # stop every enabled server
  emuctl status --api-url=http://vps:8080`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to config file (default emulators.json)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", client.DefaultBaseURL, "control service URL")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", client.DefaultTimeout, "request timeout")
	cmd.Flags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for an HTTPS service")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", false, "skip TLS verification")
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print the raw JSON response")
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config]",
		Short: "Run the emulator control service",
		Long: `Run the emulator control service in the foreground.

The config file is taken from the argument, then --config, then
emulators.json in the working directory. EMUCTL_* environment variables
override file values (EMUCTL_PORT, EMUCTL_PATH, EMUCTL_LOG_LEVEL, ...).

Examples:
  emuctl serve
  emuctl serve /etc/emuctl/emulators.yaml
  emuctl serve --daemonize --pidfile=/run/emuctl.pid --logfile=/var/log/emuctl.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), *serveFlags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&serveFlags.PIDFile, "pidfile", "", "write the service PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "write logs to this rotated file instead of the console")
	return cmd
}

// createSequenceCommand builds the start and stop commands.
func createSequenceCommand(op string, f *APIFlags) *cobra.Command {
	verb := map[string]string{"start": "Start", "stop": "Stop"}[op]
	order := map[string]string{"start": "in configured order", "stop": "in reverse order"}[op]
	cmd := &cobra.Command{
		Use:   op + " [serverId|all]",
		Short: verb + " the emulators of a server",
		Long: fmt.Sprintf(`%s the emulators of one server %s, or of every enabled
server when no id or "all" is given.

Examples:
  emuctl %s s1
  emuctl %s all --api-url=http://vps:8080`, verb, order, op, op),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runSequence(cmd.Context(), op, id, *f, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [serverId]",
		Short: "Show emulator status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runStatus(cmd.Context(), id, *f, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createInfoCommand(f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe the running control service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInfo(cmd.Context(), *f, cmd.OutOrStdout())
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}
