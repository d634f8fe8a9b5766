package cmd

import (
	"context"
	"fmt"

	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build <seller-id>",
	Short: "Rebuild the index of a seller from its dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
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

	res, err := a.Builder.Build(ctx, tenant)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{
			"seller_id":        res.TenantKey,
			"total_embeddings": res.TotalEmbeddings,
			"unique_products":  res.UniqueProducts,
			"skipped_images":   res.SkippedImages,
		})
	}

	fmt.Printf("Index for %s built: %d embeddings, %d products, %d images skipped\n",
		res.TenantKey, res.TotalEmbeddings, res.UniqueProducts, res.SkippedImages)
	return nil
}
