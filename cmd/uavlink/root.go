package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sarchlab/uavlink/config"
)

var (
	configPath string
	envFile    string
	logFile    string

	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "uavlink",
	Short: "uavlink moves vehicle objects over a telemetry link.",
	Long: `uavlink schedules, sends and logs vehicle objects over a ` +
		`telemetry link and keeps the link statistics up to date. It can run ` +
		`the link against a simulated ground station and read back the ` +
		`recorded flight log.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error

		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}

		if logFile != "" {
			cfg.Log.File = logFile
		}

		setupLogging(cfg.Log)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"file with UAVLINK_* variables, skipped if missing")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"write log lines to a rotating file instead of stderr")
}

func setupLogging(c config.LogConfig) {
	if c.File == "" {
		return
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}

	log.SetOutput(w)
	fmt.Fprintf(os.Stderr, "Logging to %s\n", c.File)
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
