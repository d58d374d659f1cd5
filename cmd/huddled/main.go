package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/huddle/internal/daemon"
	"github.com/matheus3301/huddle/internal/paths"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.huddle/config.toml)")
	envFlag := flag.String("env-file", ".env", "dotenv file with HUDDLE_* overrides, ignored if missing")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	instance := paths.Resolve(*instanceFlag)
	if err := paths.ValidateName(instance); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Instance:   instance,
			ConfigPath: *configFlag,
			EnvFile:    *envFlag,
			ListenAddr: *listenFlag,
			Debug:      *debugFlag,
		}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
