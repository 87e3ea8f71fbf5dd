// Command server runs the dogmatch web application and, when enabled, the
// catalog proxy.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/simp-lee/dogmatch/internal/app"
	"github.com/simp-lee/dogmatch/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "dogmatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return a.Run()
}
