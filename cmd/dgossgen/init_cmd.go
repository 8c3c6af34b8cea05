package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/dgossgen/internal/config"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", ".dgossgen.yml", "Path to write the starter policy config")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dgossgen init [flags]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := config.WriteTemplate(*configPath); err != nil {
		return fmt.Errorf("write starter config: %w", err)
	}
	slog.Info("wrote starter policy config", "path", *configPath)
	return nil
}
