package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "rugged",
	Short: "Geodetic localization for pushbroom line-sensor imagery",
	Long: `rugged localizes pushbroom line-sensor imagery on a Digital Elevation
Model: given a spacecraft ephemeris, sensor geometry and a DEM it answers
where on the ground each pixel looks (direct localization) and which sensor
line and pixel observes a given ground point (inverse localization), with
light-time and aberration-of-light corrections.

Scenarios (ephemeris, attitude, sensors, DEM) are JSON documents; see the
scenario package for the schema. The serve subcommand exposes the engine
over HTTP, locate and inverse run one-shot localizations.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("scenario", "s", "scenario.json", "Scenario file to load")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
}

// newLogger builds the process logger from the --log-level flag.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		switch v {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
