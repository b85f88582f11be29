package main

import (
	"flag"
	"fmt"
	"os"

	"MarketSignal/internal/di"
	"MarketSignal/pkg/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("marketsignal", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	checkOnly := fs.Bool("check", false, "validate the config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if *checkOnly {
		fmt.Printf("config ok: env=%s port=%d clickhouse=%t redis=%t kafka=%t\n",
			cfg.Environment, cfg.Server.Port, cfg.ClickHouse.Enabled, cfg.Redis.Enabled, cfg.Kafka.Enabled)
		return 0
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		return 1
	}
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}
	return 0
}
