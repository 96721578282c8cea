package main

import (
	"flag"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/qiaoborui/telegram-search-bot/internal/daemon"
)

func main() {
	dataDir := flag.String("data-dir", "", "data directory (default ~/.searchbot)")
	configPath := flag.String("config", "", "config file path (default <data-dir>/config.toml)")
	flag.Parse()

	// Secrets come from the environment; .env is a convenience for
	// local runs.
	_ = godotenv.Load()

	app := fx.New(
		daemon.Module(daemon.Params{
			DataDir:    *dataDir,
			ConfigPath: *configPath,
		}),
	)

	app.Run()
}
