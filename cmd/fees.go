package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mselser95/reservation-escrow/internal/fees"
	"github.com/mselser95/reservation-escrow/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var feesCmd = &cobra.Command{
	Use:   "fees",
	Short: "Inspect protocol fee parameters",
}

//nolint:gochecknoglobals // Cobra boilerplate
var feesQuoteCmd = &cobra.Command{
	Use:   "quote <price>",
	Short: "Show every amount derived from a listing price",
	Long: `Computes the listing fee, seller stake, buyer deposit, success fee and
the outcome of each settlement path for a price.

Example:
  reservation-escrow fees quote 100.00
  reservation-escrow fees quote 250 --protocol-file protocol.toml`,
	Args: cobra.ExactArgs(1),
	RunE: runFeesQuote,
}

//nolint:gochecknoglobals // Cobra boilerplate
var feesDefaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Print the default protocol file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return config.WriteProtocol(cmd.OutOrStdout(), config.DefaultProtocol())
	},
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(feesCmd)
	feesCmd.AddCommand(feesQuoteCmd)
	feesCmd.AddCommand(feesDefaultsCmd)
	feesQuoteCmd.Flags().String("protocol-file", "", "TOML protocol file (defaults to PROTOCOL_CONFIG_FILE)")
}

func runFeesQuote(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("protocol-file")
	protocol, err := loadProtocol(path)
	if err != nil {
		return err
	}

	calc, err := fees.New(fees.Params{
		ListingFeeBps:       protocol.Fees.ListingFeeBps,
		SuccessFeeBps:       protocol.Fees.SuccessFeeBps,
		DepositMultiplier:   protocol.Fees.DepositMultiplier,
		SellerStakeBps:      protocol.Fees.SellerStakeBps,
		ForfeitureSellerBps: protocol.Fees.ForfeitureSellerBps,
	})
	if err != nil {
		return fmt.Errorf("fee parameters: %w", err)
	}

	decimals := protocol.AmountDecimals
	price, err := fees.ParseAmount(args[0], decimals)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	if price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}

	q := calc.Quote(price)
	toSeller, toProtocol := calc.SplitForfeiture(q.BuyerDeposit)

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tAMOUNT\tPAID BY")
	fmt.Fprintf(w, "Price\t%s\tbuyer\n", fees.FormatAmount(q.Price, decimals))
	fmt.Fprintf(w, "Listing fee\t%s\tseller, at listing\n", fees.FormatAmount(q.ListingFee, decimals))
	fmt.Fprintf(w, "Seller stake\t%s\tseller, at listing\n", fees.FormatAmount(q.SellerStake, decimals))
	fmt.Fprintf(w, "Buyer deposit\t%s\tbuyer, at purchase\n", fees.FormatAmount(q.BuyerDeposit, decimals))
	fmt.Fprintf(w, "Success fee\t%s\tseller, at settlement\n", fees.FormatAmount(q.SuccessFee, decimals))
	_ = w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OUTCOME\tSELLER\tPROTOCOL")
	fmt.Fprintf(w, "Settled\t+%s\t+%s\n",
		fees.FormatAmount(q.SellerPayout, decimals),
		fees.FormatAmount(q.SuccessFee, decimals))
	fmt.Fprintf(w, "Claim window missed (deposit forfeited)\t+%s\t+%s\n",
		fees.FormatAmount(toSeller, decimals),
		fees.FormatAmount(toProtocol, decimals))
	_ = w.Flush()

	fmt.Fprintf(out, "\nSeller net after listing fee: %s\n", fees.FormatAmount(q.SellerNet, decimals))
	return nil
}

// loadProtocol reads path, PROTOCOL_CONFIG_FILE, or the defaults, in that
// order.
func loadProtocol(path string) (config.Protocol, error) {
	if path == "" {
		path = os.Getenv("PROTOCOL_CONFIG_FILE")
	}
	if path == "" {
		return config.DefaultProtocol(), nil
	}
	p, err := config.LoadProtocolFile(path)
	if err != nil {
		return config.Protocol{}, fmt.Errorf("load protocol file: %w", err)
	}
	return p, nil
}
