package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/reservation-escrow/internal/proof"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var proofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Create and inspect reservation proofs",
}

//nolint:gochecknoglobals // Cobra boilerplate
var proofKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an attester key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := proof.GenerateSigner()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "RELAYER_ATTESTER_KEY=%s\n", signer.HexKey())
		fmt.Fprintf(out, "ATTESTER_ADDRESSES=%s\n", signer.Address().Hex())
		return nil
	},
}

//nolint:gochecknoglobals // Cobra boilerplate
var proofSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a reservation proof with an attester key",
	Long: `Signs a proof the way the email relayer does, for local testing.
The key comes from --key or RELAYER_ATTESTER_KEY.

Example:
  reservation-escrow proof sign --type confirmation --id OT-1001 \
    --venue "Le Bernardin" --slot 2026-11-01T19:30:00Z --party 2`,
	Args: cobra.NoArgs,
	RunE: runProofSign,
}

//nolint:gochecknoglobals // Cobra boilerplate
var proofInspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Authenticate a proof and print its normalized claim",
	Long: `Reads a proof from a file, or stdin when no file is given, checks its
signature against the trusted attesters (--attester or ATTESTER_ADDRESSES)
and prints the claim the escrow engine would see.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProofInspect,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(proofCmd)
	proofCmd.AddCommand(proofKeygenCmd, proofSignCmd, proofInspectCmd)

	proofSignCmd.Flags().String("key", "", "Attester private key (hex)")
	proofSignCmd.Flags().StringP("type", "t", "confirmation", "confirmation, cancellation or new_booking")
	proofSignCmd.Flags().StringP("platform", "p", "opentable", "opentable or resy")
	proofSignCmd.Flags().String("id", "", "Reservation id the event concerns")
	proofSignCmd.Flags().String("venue", "", "Restaurant name")
	proofSignCmd.Flags().String("slot", "", "Reservation time, RFC3339")
	proofSignCmd.Flags().Int("party", 2, "Party size")
	_ = proofSignCmd.MarkFlagRequired("id")
	_ = proofSignCmd.MarkFlagRequired("venue")
	_ = proofSignCmd.MarkFlagRequired("slot")

	proofInspectCmd.Flags().StringSlice("attester", nil, "Trusted attester address (repeatable)")
}

func runProofSign(cmd *cobra.Command, args []string) error {
	key, _ := cmd.Flags().GetString("key")
	if key == "" {
		key = os.Getenv("RELAYER_ATTESTER_KEY")
	}
	if key == "" {
		return fmt.Errorf("attester key required: set --key or RELAYER_ATTESTER_KEY")
	}
	signer, err := proof.NewSigner(key)
	if err != nil {
		return err
	}

	typ, _ := cmd.Flags().GetString("type")
	platform, _ := cmd.Flags().GetString("platform")
	id, _ := cmd.Flags().GetString("id")
	venue, _ := cmd.Flags().GetString("venue")
	slotText, _ := cmd.Flags().GetString("slot")
	party, _ := cmd.Flags().GetInt("party")

	slot, err := time.Parse(time.RFC3339, slotText)
	if err != nil {
		return fmt.Errorf("parse --slot: %w", err)
	}

	now := time.Now()
	payload := proof.Payload{
		Platform:        platform,
		RestaurantName:  venue,
		ReservationTime: slot.Unix(),
		PartySize:       party,
		EventTime:       now.Unix(),
		IssuedAt:        now.Unix(),
	}
	switch proof.EventType(typ) {
	case proof.EventConfirmation:
		payload.Type, payload.ReservationID = proof.KindReservation, id
	case proof.EventCancellation:
		payload.Type, payload.OriginalReservationID = proof.KindCancellation, id
	case proof.EventNewBooking:
		payload.Type, payload.NewReservationID = proof.KindBooking, id
	default:
		return fmt.Errorf("unknown --type %q", typ)
	}

	// Catch bad input before signing.
	_, err = proof.Normalize(payload)
	if err != nil {
		return err
	}

	p, err := signer.Sign(payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(p))
	return nil
}

func runProofInspect(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	if len(args) == 1 {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read proof: %w", err)
	}

	attesterFlags, _ := cmd.Flags().GetStringSlice("attester")
	if len(attesterFlags) == 0 {
		attesterFlags = strings.Split(os.Getenv("ATTESTER_ADDRESSES"), ",")
	}
	var attesters []common.Address
	for _, a := range attesterFlags {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid attester address %q", a)
		}
		attesters = append(attesters, common.HexToAddress(a))
	}

	verifier, err := proof.NewAttestationVerifier(&proof.AttestationConfig{
		Attesters: attesters,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		return err
	}

	claim, err := verifier.Authenticate(context.Background(), proof.Proof(strings.TrimSpace(string(raw))))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Event\t%s\n", claim.EventType)
	fmt.Fprintf(w, "Platform\t%s\n", claim.Platform)
	fmt.Fprintf(w, "Reservation\t%s (%s)\n", claim.Fields["reservation_id"], claim.ReservationHash.Hex())
	fmt.Fprintf(w, "Context\t%s\n", claim.ContextHash.Hex())
	fmt.Fprintf(w, "Venue\t%s\n", claim.Fields["venue"])
	fmt.Fprintf(w, "Party\t%s\n", claim.Fields["party_size"])
	fmt.Fprintf(w, "Event time\t%s\n", claim.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Attester\t%s\n", claim.Attester.Hex())
	fmt.Fprintf(w, "Digest\t%s\n", claim.Digest.Hex())
	return w.Flush()
}
