package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/logging"
)

var cfgFile string

func init() {
	// highgui windows must be driven from the main thread.
	runtime.LockOSThread()
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "motionwatch",
	Short: "Watch camera feeds for motion, record clips and send email alerts",
	Long: `motionwatch reads one or more RTSP, file or device feeds, detects motion
by frame differencing, records a snapshot and short clip of every event and
emails the snapshot, with a cooldown between alerts per camera.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.AddCommand(newRunCmd(), newTestEmailCmd(), newProbeCmd(), newGmailAuthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and builds the process logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
