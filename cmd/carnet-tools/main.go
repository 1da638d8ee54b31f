package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/carnet-tools/internal/app"
	"github.com/ironsheep/carnet-tools/internal/config"
	"github.com/ironsheep/carnet-tools/internal/logging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("carnet-tools - employee badge barcodes and printable carnets")
	fmt.Println()
	fmt.Println("Usage: carnet-tools <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	app.Usage(os.Stdout)
	fmt.Println()
	fmt.Println("Run 'carnet-tools <command> -h' for the flags of a command.")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  CARNET_DATA_DIR=./data          Data directory")
	fmt.Println("  CARNET_LOG_LEVEL=debug          Enable debug logging")
	fmt.Println("  CARNET_RENDER_CHROME_PATH=...   Chrome or Chromium binary")
	fmt.Println("  CARNET_OCR_TESSDATA_PREFIX=...  Tesseract language data")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("carnet-tools %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries command output and, for mcp, the protocol.
	log := logging.New(os.Stderr, cfg.LogLevel)
	log.Debug().Str("version", Version).Str("commit", GitCommit).Str("data_dir", cfg.DataDir).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Version = Version
	if err := app.New(cfg, log, os.Stdin, os.Stdout).Run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, app.ErrUsage) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
