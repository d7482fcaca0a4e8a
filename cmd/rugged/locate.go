package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/sesteves/rugged-main/internal/geodesy"
	"github.com/sesteves/rugged-main/internal/scenario"
)

// locateCmd runs a one-shot direct localization of a sensor line.
var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Directly localize one sensor line on the ground",
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger(cmd)

		scenarioPath, _ := cmd.Flags().GetString("scenario")
		built, err := scenario.Load(scenarioPath, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR loading scenario:", err)
			os.Exit(1)
		}

		engine, err := built.NewEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR building engine:", err)
			os.Exit(1)
		}

		sensorName, _ := cmd.Flags().GetString("sensor")
		if sensorName == "" && len(built.Sensors) > 0 {
			sensorName = built.Sensors[0].Name()
		}
		line, _ := cmd.Flags().GetFloat64("line")

		points, err := engine.DirectLocalization(sensorName, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR localizing:", err)
			os.Exit(1)
		}

		type pixelOut struct {
			Pixel        int     `json:"pixel"`
			LatitudeDeg  float64 `json:"latitudeDeg"`
			LongitudeDeg float64 `json:"longitudeDeg"`
			AltitudeM    float64 `json:"altitudeM"`
		}
		out := make([]pixelOut, len(points))
		for i, p := range points {
			out[i] = pixelOut{
				Pixel:        i,
				LatitudeDeg:  p.Latitude * 180 / math.Pi,
				LongitudeDeg: p.Longitude * 180 / math.Pi,
				AltitudeM:    p.Altitude,
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(map[string]any{"sensor": sensorName, "line": line, "points": out})
	},
}

// inverseCmd runs a one-shot inverse localization of a ground point.
var inverseCmd = &cobra.Command{
	Use:   "inverse",
	Short: "Find the sensor line and pixel observing a ground point",
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger(cmd)

		scenarioPath, _ := cmd.Flags().GetString("scenario")
		built, err := scenario.Load(scenarioPath, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR loading scenario:", err)
			os.Exit(1)
		}

		engine, err := built.NewEngine()
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR building engine:", err)
			os.Exit(1)
		}

		sensorName, _ := cmd.Flags().GetString("sensor")
		if sensorName == "" && len(built.Sensors) > 0 {
			sensorName = built.Sensors[0].Name()
		}
		latDeg, _ := cmd.Flags().GetFloat64("lat")
		lonDeg, _ := cmd.Flags().GetFloat64("lon")
		alt, _ := cmd.Flags().GetFloat64("alt")
		minLine, _ := cmd.Flags().GetFloat64("min-line")
		maxLine, _ := cmd.Flags().GetFloat64("max-line")

		ground := geodesy.GeodeticPoint{
			Latitude:  latDeg * math.Pi / 180,
			Longitude: lonDeg * math.Pi / 180,
			Altitude:  alt,
		}
		pixel, err := engine.InverseLocalization(sensorName, ground, minLine, maxLine)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR localizing:", err)
			os.Exit(1)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if pixel == nil {
			enc.Encode(map[string]any{"found": false})
			return
		}
		enc.Encode(map[string]any{"found": true, "line": pixel.Line, "pixel": pixel.Pixel})
	},
}

func init() {
	rootCmd.AddCommand(locateCmd)
	locateCmd.Flags().String("sensor", "", "Sensor name (default: first scenario sensor)")
	locateCmd.Flags().Float64("line", 0, "Line number to localize")

	rootCmd.AddCommand(inverseCmd)
	inverseCmd.Flags().String("sensor", "", "Sensor name (default: first scenario sensor)")
	inverseCmd.Flags().Float64("lat", 0, "Ground point latitude (degrees)")
	inverseCmd.Flags().Float64("lon", 0, "Ground point longitude (degrees)")
	inverseCmd.Flags().Float64("alt", 0, "Ground point altitude (meters)")
	inverseCmd.Flags().Float64("min-line", 0, "Start of the line search range")
	inverseCmd.Flags().Float64("max-line", 1000, "End of the line search range")
}
