package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "List seller indexes stored on disk",
	Args:  cobra.NoArgs,
	RunE:  runIndexes,
}

func init() {
	rootCmd.AddCommand(indexesCmd)
}

func runIndexes(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	a.LoadIndexes(ctx)
	info := a.Recognition.ModelInfo()

	if outputFormat == "json" {
		return printJSON(info.Tenants)
	}

	if len(info.Tenants) == 0 {
		fmt.Println("No indexes found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SELLER\tEMBEDDINGS\tPRODUCTS\tCREATED")
	for _, t := range info.Tenants {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", t.TenantKey, t.TotalEmbeddings, t.UniqueProducts, t.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
