package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"frameconnect/internal/models"
	"frameconnect/pkg/config"
	"frameconnect/pkg/connect"
	"frameconnect/pkg/locio"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "CSV file of localizations")
	outputPath := flag.String("output", "", "Output CSV file (default: <input>_connected.csv)")
	configPath := flag.String("config", "frameconnect.yaml", "YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	nFrames := flag.Int("frames", -1, "Number of frames per dataset (default: from config, 0 = latest frame)")
	numCores := flag.Int("cores", -1, "Number of preclusters solved concurrently (default: from config)")
	maxFrameGap := flag.Int("gap", -1, "Maximum frame gap (default: from config)")
	ideal := flag.Bool("ideal", false, "Connect using the track_id column as ground truth")
	combineOnly := flag.Bool("combine-only", false, "Combine using the track_id column without connecting")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" || (*ideal && *combineOnly) {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *nFrames >= 0 {
		cfg.Processing.NFrames = *nFrames
	}
	if *numCores >= 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *maxFrameGap >= 0 {
		cfg.Connection.MaxFrameGap = *maxFrameGap
	}
	cfg.Output.Verbose = cfg.Output.Verbose || *verbose
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg.Output.Verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *outputPath == "" {
		ext := filepath.Ext(*inputPath)
		*outputPath = strings.TrimSuffix(*inputPath, ext) + "_connected.csv"
	}

	locs, err := locio.ReadFile(*inputPath)
	if err != nil {
		logger.Fatal("Failed to read localizations", zap.String("path", *inputPath), zap.Error(err))
	}
	logger.Info("Loaded localizations", zap.String("path", *inputPath), zap.Int("count", len(locs)))

	startTime := time.Now()
	var combined, connected []models.Localization
	switch {
	case *combineOnly:
		combined, err = connect.CombineOnly(locs)
	case *ideal:
		combined, connected, err = connect.IdealConnect(locs, cfg.Connection.MaxFrameGap)
	default:
		var info *connect.Info
		connector := connect.NewConnector(cfg.ConnectParams(), logger)
		combined, info, err = connector.Connect(locs, connect.Metadata{
			NFrames:   cfg.Processing.NFrames,
			NDatasets: countDatasets(locs),
		})
		if err == nil {
			connected = info.Connected
			printRates(info)
		}
	}
	if err != nil {
		logger.Fatal("Frame connection failed", zap.Error(err))
	}
	processingTime := time.Since(startTime)

	if err := locio.WriteFile(*outputPath, combined); err != nil {
		logger.Fatal("Failed to write output", zap.String("path", *outputPath), zap.Error(err))
	}
	if cfg.Output.WriteConnected && connected != nil {
		ext := filepath.Ext(*outputPath)
		labelledPath := strings.TrimSuffix(*outputPath, ext) + "_labels" + ext
		if err := locio.WriteFile(labelledPath, connected); err != nil {
			logger.Fatal("Failed to write labelled localizations", zap.String("path", labelledPath), zap.Error(err))
		}
		fmt.Printf("Labelled localizations saved to: %s\n", labelledPath)
	}

	fmt.Printf("\nFrame connection completed in %.2f seconds\n", processingTime.Seconds())
	fmt.Printf("- Input localizations: %d\n", len(locs))
	fmt.Printf("- Output localizations: %d\n", len(combined))
	if len(locs) > 0 {
		fmt.Printf("- Compression: %.2fx\n", float64(len(locs))/float64(max(len(combined), 1)))
	}
	fmt.Printf("Output saved to: %s\n", *outputPath)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func countDatasets(locs []models.Localization) int {
	seen := make(map[int]struct{})
	for _, l := range locs {
		seen[l.Dataset] = struct{}{}
	}
	return len(seen)
}

func printRates(info *connect.Info) {
	fmt.Printf("\nFitted blinking kinetics:\n")
	fmt.Printf("- k_on:     %.6g per frame\n", info.Rates.KOn)
	fmt.Printf("- k_off:    %.6g per frame\n", info.Rates.KOff)
	fmt.Printf("- k_bleach: %.6g per frame\n", info.Rates.KBleach)
	fmt.Printf("- p_miss:   %.4f\n", info.Rates.PMiss)
	fmt.Printf("- emitters: %.1f\n", info.Rates.EmitterCount)
	fmt.Printf("- preclusters: %d, tracks: %d\n", info.PreclusterCount, info.TrackCount)
}
