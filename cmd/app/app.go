package main

import (
	"os"

	"github.com/DRSN-tech/vision-service/internal/app"
	config "github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/pkg/logger"
)

func main() {
	config.LoadDotEnv()

	log := logger.MustZapLogger(logger.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		_ = log.Sync()
		os.Exit(1)
	}
}
