package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/GabrielSantos23/downly/internal"
	"github.com/GabrielSantos23/downly/pkg/logger"
	"github.com/joho/godotenv"
)

var log = logger.Get("Main")

// main loads the user configuration, constructs the engine and runs it
// until an interrupt/terminate signal arrives.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Emit(logger.DEBUG, "No .env file found\n")
	}

	configPath := flag.String("config", "./config.yaml", "path to the YAML configuration file")
	flag.Parse()

	config := internal.DownlyConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	downly, err := internal.New(config)
	if err != nil {
		log.Emit(logger.FATAL, "Failed to initialise: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := downly.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Engine stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Engine stopped\n")
}
