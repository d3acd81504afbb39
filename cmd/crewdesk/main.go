package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/crewdesk/crewdesk/internal"
	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/internal/log"
)

var BuildVersion = "dev"

func main() {
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	validate := flag.Bool("validate", false, "validate environment configuration and exit")
	flag.Parse()
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Println("Configuration: PASS")
		return
	}

	log.LogInfoWithFields("main", "Starting crewdesk", map[string]any{
		"version": BuildVersion,
		"addr":    cfg.Addr,
	})

	ctx := context.Background()
	app, err := internal.NewCrewdesk(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Server exited with error: %v", err)
		os.Exit(1)
	}
}
