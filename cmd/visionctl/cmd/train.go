package cmd

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/spf13/cobra"
)

var fineTune bool

var trainCmd = &cobra.Command{
	Use:   "train <seller-id>",
	Short: "Run a training job for a seller and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().BoolVar(&fineTune, "fine-tune", false, "Fine-tune the embedding model before building the index")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	tenant, err := domain.NormalizeTenantKey(args[0])
	if err != nil {
		return err
	}
	job, err := a.Training.Submit(ctx, tenant, fineTune)
	if err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}
	fmt.Printf("Training %s started (run %s)\n", tenant, job.RunID)

	if err := a.Training.Wait(ctx); err != nil {
		return err
	}

	final, err := a.Training.Status(ctx, tenant)
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(final)
	}

	fmt.Printf("Status:   %s (%d%%)\n", final.Status, final.Progress)
	fmt.Printf("Message:  %s\n", final.Message)
	if final.Status == domain.JobError {
		return fmt.Errorf("training %s failed", tenant)
	}
	return nil
}
