package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"framepipe/internal/config"
	"framepipe/internal/logging"
	ui "framepipe/internal/ui"
	"framepipe/processing/capture/source"
	"framepipe/processing/capture/webcam"
	processing "framepipe/processing/detector"
	"framepipe/processing/display"
	"framepipe/processing/display/highgui"
	"framepipe/processing/pipeline"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to the JSON config file")
	listCameras := flag.Bool("list-cameras", false, "print the available cameras and exit")
	flag.Parse()

	if *listCameras {
		for _, c := range webcam.ListCameras() {
			fmt.Printf("%s\t%s\n", c.ID, c.Label)
		}
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logCloser.Close()

	det := processing.NewRemoteDetector(cfg.Inference.Host, cfg.Inference.Model, cfg.Inference.Version)
	defer det.Close()

	slog.Info("starting",
		"source", cfg.ActiveSource,
		"display", cfg.Display.Backend,
		"inference", cfg.Inference.Host,
		"dispatch_modulus", cfg.DispatchModulus,
	)

	if cfg.Display.Backend == config.DisplayWindow {
		app := ui.CreateApp(cfg, configPath, det, source.NewStreamer)
		app.Run()
		return nil
	}

	var surface processing.Display
	switch cfg.Display.Backend {
	case config.DisplayHighGUI:
		surface = highgui.New(cfg.Display.WindowName)
	default:
		surface = display.NewDiscard(5 * time.Second)
	}
	return runHeadless(cfg, det, surface)
}

// runHeadless streams until SIGINT/SIGTERM or a fatal render error.
func runHeadless(cfg *config.Config, det processing.Detector, surface processing.Display) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := source.NewStreamer(cfg)
	if err != nil {
		return err
	}

	ctrl := pipeline.New(cfg, transport, det, surface)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info("interrupted, shutting down")
	case <-ctrl.Done():
	}

	return ctrl.Stop()
}
