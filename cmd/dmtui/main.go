// Command dmtui is the interactive dmsync terminal client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/app"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/session"
	"github.com/matheus3301/dmsync/internal/tui"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default ~/.dmsync/config.toml)")
	flag.Parse()

	if err := run(*sessionFlag, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(sessionFlag, configPath string) error {
	config.LoadDotEnv("")
	if configPath == "" {
		configPath = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	sessionName := session.Resolve(sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		return err
	}

	var c app.Components
	fxApp := fx.New(
		app.Module(app.Params{SessionName: sessionName, Config: cfg, Interactive: true}),
		fx.Populate(&c),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("start session %q: %w", sessionName, err)
	}

	c.Logger.Info("tui starting", zap.String("session", sessionName))
	runErr := tui.NewApp(c.Core, c.Identity, sessionName).Run()
	if runErr != nil {
		c.Logger.Error("tui exited", zap.Error(runErr))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
