package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/app"
	"github.com/tchap/cdn/ipanon/internal/config"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// Load config.
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %+v\n", err)
		return err
	}

	// Init logging. Logs go to stderr, stdout may be the output.
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %+v\n", err)
		return err
	}
	logger = logger.WithOptions(zap.IncreaseLevel(c.LogLevel))
	defer logger.Sync()

	// Start processing signals.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Build and start the app.
	anonymizer, err := app.New(*c, logger.Named("ipanon"))
	if err != nil {
		return err
	}

	// Wait for a signal and terminate.
	go func() {
		<-sigCh
		logger.Info("Signal received, terminating...")
		signal.Stop(sigCh)
		anonymizer.Stop()
	}()

	if err := anonymizer.Wait(); err != nil {
		logger.Error("Terminated with an error.", zap.Error(err))
		return err
	}
	return nil
}
