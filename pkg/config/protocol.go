package config

import (
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"
)

// Protocol is the on-disk form of the protocol parameters.
type Protocol struct {
	Fees            ProtocolFees   `toml:"fees"`
	Timing          ProtocolTiming `toml:"timing"`
	RelistOnTimeout bool           `toml:"relist_on_timeout"`
	Treasury        string         `toml:"treasury"`
	AmountDecimals  int            `toml:"amount_decimals"`
}

// ProtocolFees mirrors fees.Params.
type ProtocolFees struct {
	ListingFeeBps       uint32 `toml:"listing_fee_bps"`
	SuccessFeeBps       uint32 `toml:"success_fee_bps"`
	DepositMultiplier   uint32 `toml:"deposit_multiplier"`
	SellerStakeBps      uint32 `toml:"seller_stake_bps"`
	ForfeitureSellerBps uint32 `toml:"forfeiture_seller_bps"`
}

// ProtocolTiming holds the time parameters as duration strings ("10m").
type ProtocolTiming struct {
	MinLeadTime          Duration `toml:"min_lead_time"`
	ClaimWindow          Duration `toml:"claim_window"`
	EarlyCancelTolerance Duration `toml:"early_cancel_tolerance"`
}

// Duration decodes a TOML string with time.ParseDuration.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultProtocol returns the shipped protocol parameters.
func DefaultProtocol() Protocol {
	return Protocol{
		Fees: ProtocolFees{
			ListingFeeBps:       250,
			SuccessFeeBps:       300,
			DepositMultiplier:   50,
			SellerStakeBps:      1000,
			ForfeitureSellerBps: 8000,
		},
		Timing: ProtocolTiming{
			MinLeadTime:          Duration{time.Hour},
			ClaimWindow:          Duration{10 * time.Minute},
			EarlyCancelTolerance: Duration{2 * time.Minute},
		},
		RelistOnTimeout: false,
		Treasury:        "0x000000000000000000000000000000000000fEE5",
		AmountDecimals:  2,
	}
}

// LoadProtocolFile reads a TOML protocol file. Keys missing from the file
// keep their defaults; unknown keys are rejected.
func LoadProtocolFile(path string) (Protocol, error) {
	p := DefaultProtocol()
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Protocol{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Protocol{}, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return p, nil
}

// WriteProtocol encodes p as TOML, in the format LoadProtocolFile reads.
func WriteProtocol(w io.Writer, p Protocol) error {
	err := toml.NewEncoder(w).Encode(p)
	if err != nil {
		return fmt.Errorf("encode protocol: %w", err)
	}
	return nil
}
