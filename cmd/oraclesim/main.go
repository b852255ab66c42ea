package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.Int("port", 54321, "simulator server port")
	curve := flag.String("curve", "linear", "price curve: linear or depreciating")
	seed := flag.Int64("seed", 1, "seed for injected failures")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "development")
	logger.Info("Starting oracle simulator")

	sim := simulator.New(simulator.Config{
		Port:  *port,
		Curve: *curve,
		Seed:  *seed,
	})

	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator")
	return sim.Stop()
}
