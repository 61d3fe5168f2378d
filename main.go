package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wildstyl3r/ionpic/internal/config"
	"github.com/wildstyl3r/ionpic/internal/model"
	"github.com/wildstyl3r/ionpic/internal/utils"
)

func main() {
	dataFlags := model.NewDataFlags()
	var configFileNamePointer = flag.String("input", "ionization", "simulation configuration in toml format")
	var verbose = flag.Bool("v", false, "log every step and the ionization appearance fields")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	startTime := time.Now()
	logger.Info("start", "time", startTime.UTC().Format(time.UnixDate))

	configFileName := strings.TrimSuffix(*configFileNamePointer, ".toml")
	cfg, err := config.LoadConfig(configFileName)
	if err != nil {
		logger.Error("unable to load config", "err", err)
		os.Exit(1)
	}

	outputPath := cfg.OutputDir
	if outputPath == "" {
		outputPath = "."
	}
	if cfg.MakeDir {
		outputPath = filepath.Join(outputPath, utils.GetFilename(configFileName))
	}
	if err := os.MkdirAll(outputPath, 0750); err != nil {
		logger.Error("unable to create output directory", "err", err)
		os.Exit(1)
	}
	if err := cfg.WriteYAML(filepath.Join(outputPath, "config.yaml")); err != nil {
		logger.Warn("unable to save resolved config", "err", err)
	}

	m, err := model.NewModel(cfg, model.NewStaticSolver(cfg.ExternalE, cfg.ExternalB), logger)
	if err != nil {
		logger.Error("unable to build model", "err", err)
		os.Exit(1)
	}
	if cfg.Checkpoint.RestartDir != "" {
		path, err := model.RestoreLatest(m, cfg.Checkpoint.RestartDir)
		if err != nil {
			logger.Error("unable to restart", "dir", cfg.Checkpoint.RestartDir, "err", err)
			os.Exit(1)
		}
		logger.Info("restarting", "dump", path)
	}

	extractor, err := model.NewDataExtractor(outputPath, cfg.MakeDir, cfg.Diagnostics, dataFlags)
	if err != nil {
		logger.Error("unable to set up diagnostics", "err", err)
		os.Exit(1)
	}
	checkpointer := model.NewCheckpointer(filepath.Join(outputPath, "checkpoints"), cfg.Checkpoint)

	if err := m.Run(cfg.Steps(), extractor, checkpointer); err != nil {
		logger.Error("run failed", "step", m.CurrentStep(), "err", err)
		if err := extractor.Close(); err != nil {
			logger.Error("unable to flush diagnostics", "err", err)
		}
		os.Exit(1)
	}
	if err := extractor.Close(); err != nil {
		logger.Error("unable to flush diagnostics", "err", err)
		os.Exit(1)
	}
	logger.Info("done", "steps", m.CurrentStep(), "particles", m.ParticleCount(), "elapsed", time.Since(startTime))
}
