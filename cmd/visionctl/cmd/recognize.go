package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/internal/usecase"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <seller-id> <image-file>",
	Short: "Recognize seller products on an image",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
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
	if err := loadIndex(ctx, a.Training, tenant); err != nil {
		return err
	}

	res, err := a.Recognition.Recognize(ctx, tenant, data)
	if err != nil {
		return fmt.Errorf("recognize failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{
			"seller_id":   res.TenantKey,
			"predictions": res.Predictions,
			"detections":  res.Detections,
			"message":     res.Message,
		})
	}

	if !res.Trained {
		fmt.Println(res.Message)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tNAME\tPRICE\tSIMILARITY\tBBOX")
	for _, p := range res.Predictions {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.3f\t%v\n", p.ProductID, p.ProductName, p.Price, p.SimilarityScore, p.BBox)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d predictions from %d detections\n", len(res.Predictions), len(res.Detections))
	return nil
}

// loadIndex поднимает сохранённый индекс продавца в память.
// Отсутствие индекса не ошибка: распознавание вернёт ответ "модель не обучена".
func loadIndex(ctx context.Context, training usecase.TrainingUC, tenant string) error {
	_, err := training.Reload(ctx, tenant)
	if err != nil && !errors.Is(err, e.ErrIndexNotFound) {
		return fmt.Errorf("failed to load index: %w", err)
	}
	return nil
}
