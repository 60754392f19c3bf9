package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/mint-oracle/internal/core/domain"
	"github.com/vietddude/mint-oracle/internal/lottery"
)

var (
	simPremium  bool
	simQuantity uint64
	simSeed     uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Draw an item list locally without touching the chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulate(cmd.OutOrStdout(), simPremium, simQuantity, simSeed)
	},
}

func init() {
	simulateCmd.Flags().BoolVar(&simPremium, "premium", false, "use the premium (crystals) table")
	simulateCmd.Flags().Uint64Var(&simQuantity, "quantity", 1, "number of items to draw")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0, "deterministic seed; 0 draws from crypto/rand")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(out io.Writer, premium bool, quantity, seed uint64) error {
	if quantity > 100000 {
		return fmt.Errorf("quantity %d too large for a simulation", quantity)
	}

	drawer := lottery.NewDrawer()
	if seed != 0 {
		drawer = lottery.NewSeededDrawer(seed)
	}
	table := lottery.TableFor(premium)
	items := lottery.NewBatcher(drawer).BuildItemList(domain.MintRequest{Premium: premium, Quantity: quantity})

	counts := make(map[domain.ItemID]int, len(table))
	for _, id := range items {
		counts[id]++
	}

	fmt.Fprintf(out, "table: %s\n", table.Name())
	fmt.Fprintf(out, "items: %v\n\n", items)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tWEIGHT\tCUMULATIVE\tDRAWN")
	cumulative := table.Cumulative()
	for i, weight := range table {
		id := domain.ItemID(i + 1)
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\n", id, weight, cumulative[i], counts[id])
	}
	return w.Flush()
}
