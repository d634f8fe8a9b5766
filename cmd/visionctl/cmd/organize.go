package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Download the catalog and rebuild seller datasets",
	Args:  cobra.NoArgs,
	RunE:  runOrganize,
}

func init() {
	rootCmd.AddCommand(organizeCmd)
}

func runOrganize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	res, err := a.Organizer.Organize(ctx)
	if err != nil {
		return fmt.Errorf("organize failed: %w", err)
	}

	if outputFormat == "json" {
		return printJSON(map[string]any{
			"organized": res.Organized,
			"sellers":   res.Tenants,
			"products":  res.Products,
			"images":    res.Images,
			"crops":     res.Crops,
			"failures":  res.Failures,
		})
	}

	if !res.Organized {
		fmt.Println("Catalog is empty, datasets left unchanged.")
		return nil
	}
	fmt.Printf("Sellers:  %s\n", strings.Join(res.Tenants, ", "))
	fmt.Printf("Products: %d\n", res.Products)
	fmt.Printf("Images:   %d (crops: %d)\n", res.Images, res.Crops)
	fmt.Printf("Failures: %d\n", res.Failures)
	return nil
}
