package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/mint-oracle/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the contract's processing marker and the chain head",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	report, err := control.ReadStatus(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to read status", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CONTRACT\tSIGNER\tCHAIN\tMARKER\tHEAD")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
		report.Contract.Hex(), report.Signer.Hex(), report.ChainID, report.Marker, report.Head)
	_ = w.Flush()
}
