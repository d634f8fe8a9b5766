package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/DRSN-tech/vision-service/internal/app"
	config "github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	// envFile: путь к .env с настройками сервиса
	envFile string
	// outputFormat: формат вывода, table или json
	outputFormat string
	// logLevel: уровень логов пайплайна
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "visionctl",
	Short: "Offline tooling for the vision recognition service",
	Long: `visionctl runs the recognition pipeline without starting the HTTP server.

It uses the same environment configuration as the service and operates on the
same datasets and index directories.

Examples:
  # Download the catalog and lay out datasets for every seller
  visionctl organize

  # Rebuild the index of one seller from its dataset
  visionctl build 42

  # Run the full training job (organize, build, publish) and wait for it
  visionctl train 42 --fine-tune

  # Recognize products on a photo
  visionctl recognize 42 shelf.jpg

  # List indexes found on disk
  visionctl indexes`,
	SilenceUsage: true,
}

// Execute запускает корневую команду.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (defaults to ./.env if present)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// newApp собирает сервис из конфигурации окружения. Серверы не запускаются.
func newApp() (*app.App, error) {
	if envFile != "" {
		config.LoadDotEnv(envFile)
	} else {
		config.LoadDotEnv()
	}

	log := logger.MustZapLogger(logger.Options{Level: logLevel, Format: "console"})

	cfg, err := config.Load(log)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.NewApp(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	return a, nil
}

// printJSON печатает v с отступами в stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
