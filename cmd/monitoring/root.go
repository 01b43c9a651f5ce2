package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/user/monitoring/internal/storage"
	"github.com/user/monitoring/internal/util"
)

const version = "1.0.0"

var (
	cfgFile  string
	logLevel string
	cfg      *util.Config
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "monitoring",
	Short: "Monit report collector and Munin stats bridge",
	Long: `monitoring collects status reports pushed by monit daemons and stores
them in SQLite:
- JSON reports become instance, service and event rows
- XML reports are archived per monit instance
- undecodable payloads are kept for review

It also serves Munin's datafile as JSON and renders graphs with munin-graph.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.monitoring/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(monitsCmd)
	rootCmd.AddCommand(muninCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	var err error
	cfg, err = util.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	util.InitLogger(util.LogOptionsFromConfig(cfg))
}

func openDB(ctx context.Context) (*storage.DB, error) {
	db, err := storage.Open(ctx, cfg.DBPath, storage.Options{
		BusyTimeout: cfg.DBBusyTimeout,
		Logger:      util.GetLogger(),
	})
	return db, errors.Wrap(err, "failed to open database")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("monitoring version %s (schema %d)\n", version, storage.SchemaVersion)
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for monitoring.

To load completions:

Bash:
  $ source <(monitoring completion bash)

Zsh:
  $ source <(monitoring completion zsh)

Fish:
  $ monitoring completion fish | source

PowerShell:
  PS> monitoring completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			return cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			return cmd.Root().GenFishCompletion(os.Stdout, true)
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
	},
}
